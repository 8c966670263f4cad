package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fundboard/internal/csvparse"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewTokenSource_MissingCredentials(t *testing.T) {
	_, err := newTokenSource(context.Background(), Credentials{})
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNewTokenSource_MissingOAuthToken(t *testing.T) {
	_, err := newTokenSource(context.Background(), Credentials{
		OAuthClientJSON: `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`,
	})
	expected := "missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)"
	if err == nil || err.Error() != expected {
		t.Fatalf("expected %q, got %v", expected, err)
	}
}

func TestNewTokenSource_InvalidOAuthClient(t *testing.T) {
	_, err := newTokenSource(context.Background(), Credentials{
		OAuthClientJSON: "invalid-json",
		OAuthTokenJSON:  `{"access_token":"test"}`,
	})
	if err == nil || !strings.Contains(err.Error(), "oauth config") {
		t.Fatalf("expected oauth config error, got %v", err)
	}
}

func TestNewTokenSource_OAuthFromFiles(t *testing.T) {
	dir := t.TempDir()
	clientPath := filepath.Join(dir, "client.json")
	tokenPath := filepath.Join(dir, "token.json")
	if err := os.WriteFile(clientPath, []byte(`{"installed":{"client_id":"id","client_secret":"s","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokenPath, []byte(`{"access_token":"abc","token_type":"Bearer","expiry":"2999-01-01T00:00:00Z"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	ts, err := newTokenSource(context.Background(), Credentials{OAuthClientFile: clientPath, OAuthTokenFile: tokenPath})
	if err != nil {
		t.Fatalf("newTokenSource() error = %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "abc" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
}

func TestNewTokenSource_UnreadableFile(t *testing.T) {
	_, err := newTokenSource(context.Background(), Credentials{ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error = %v, want os.ErrNotExist", err)
	}
}

func TestJsonUnmarshalIndirection(t *testing.T) {
	var token oauth2.Token
	if err := jsonUnmarshal([]byte(`{"access_token":"test","token_type":"Bearer"}`), &token); err != nil {
		t.Fatalf("jsonUnmarshal failed: %v", err)
	}
	if token.AccessToken != "test" {
		t.Errorf("expected access token 'test', got %s", token.AccessToken)
	}
	if err := jsonUnmarshal([]byte(`{invalid json}`), &token); err == nil {
		t.Fatal("expected error with invalid JSON")
	}
}

func TestClient_ReadRows(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"range": "'Dons'!A1:D3",
			"majorDimension": "ROWS",
			"values": [
				["Nom", "Montant", "Objectif", "Dépense"],
				["A", "1 234,56 $", "50 000 $", "4 000 $"],
				[],
				["B", "\"10\""]
			]
		}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	c := newWithService(svc, "sheet-id", "Dons")

	rows, err := c.ReadRows(context.Background())
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sheet-id/values/") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	want := []csvparse.Row{
		{"Nom", "Montant", "Objectif", "Dépense"},
		{"A", "1 234,56 $", "50 000 $", "4 000 $"},
		{"", "", "", ""},
		{"B", "10", "", ""},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %q, want %q", rows, want)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}
}

func TestClient_ReadRowsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"A1:Z1000","majorDimension":"ROWS"}`))
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	_, err = newWithService(svc, "id", "").ReadRows(context.Background())
	if !errors.Is(err, csvparse.ErrEmptyPayload) {
		t.Fatalf("error = %v, want ErrEmptyPayload", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.ReadRows(context.Background()); err == nil {
		t.Fatal("expected error with nil service")
	}
}
