package http

import (
	"encoding/json"
	"net/http"
)

// JSONResponse builds a JSON reply with optional headers.
type JSONResponse struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewJSONResponse(body any) *JSONResponse {
	return &JSONResponse{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		body:       body,
	}
}

func (b *JSONResponse) Status(code int) *JSONResponse {
	b.statusCode = code
	return b
}

func (b *JSONResponse) Header(name, value string) *JSONResponse {
	b.headers[name] = value
	return b
}

// Write sends the built response. Encoding errors after the header is out
// cannot be reported to the client and are dropped.
func (b *JSONResponse) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error reply.
func ErrorResponse(statusCode int, message string) *JSONResponse {
	return NewJSONResponse(errorBody{Error: message}).Status(statusCode)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	NewJSONResponse(body).Status(status).Write(w)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	ErrorResponse(status, message).Write(w)
}
