package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fundboard/internal/change"
	"fundboard/internal/log"
	"fundboard/internal/storage"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports 503 until templates are loaded, the store answers and
// a first cycle has produced data.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name, reason string) {
		checks[name] = reason
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if err := s.store.Ping(ctx); err != nil {
		fail("storage", fmt.Sprintf("failed: %v", err))
	} else {
		checks["storage"] = "ok"
	}

	if _, ok := s.refresher.Latest(); !ok {
		fail("data", "pending: no successful refresh yet")
	} else {
		checks["data"] = "ok"
	}

	checks["stream"] = map[string]any{"subscribers": s.hub.Count()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    s.refresher.SourceName(),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	cacheHits, cacheMisses := s.historyCache.Stats()
	eventsSent, eventsDropped := s.hub.Stats()

	ready := 0
	var total float64
	if out, ok := s.refresher.Latest(); ok {
		ready = 1
		total = out.Summary.TotalCollected.InexactFloat64()
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)
	metric("cache_hits_total", "counter", "Total history cache hits", cacheHits)
	metric("cache_misses_total", "counter", "Total history cache misses", cacheMisses)
	metric("cache_entries", "gauge", "Current history cache entries", s.historyCache.Size())
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("stream_subscribers", "gauge", "Connected event stream clients", s.hub.Count())
	metric("stream_events_sent_total", "counter", "Events delivered to stream clients", eventsSent)
	metric("stream_events_dropped_total", "counter", "Events dropped for slow stream clients", eventsDropped)
	metric("fundraising_ready", "gauge", "1 once a refresh has succeeded", ready)
	metric("fundraising_total_collected", "gauge", "Latest total collected", strconv.FormatFloat(total, 'f', 2, 64))
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.startedAt).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	theme, err := s.store.Theme(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "Theme lookup failed, using default", "error", err)
		theme = storage.DefaultTheme
	}

	data := pageData{State: s.currentState(), Theme: theme}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.events.LogError(r.Context(), "Template render failed", err, log.OpRender, nil)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentState())
}

type historyResponse struct {
	Limit   int             `json:"limit"`
	Count   int             `json:"count"`
	Records []change.Record `json:"records"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseLimit(r.URL.Query(), s.historyLimit, maxHistoryLimit)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := strconv.Itoa(limit)
	records, ok := s.historyCache.Get(key)
	if !ok {
		records, err = s.store.ListHistory(r.Context(), limit)
		if err != nil {
			s.events.LogError(r.Context(), "History query failed", err, "list_history", nil)
			writeJSONError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if records == nil {
			records = []change.Record{}
		}
		s.historyCache.Set(key, records)
	}

	writeJSON(w, http.StatusOK, historyResponse{Limit: limit, Count: len(records), Records: records})
}

// handleRefresh runs a cycle on demand. The cycle is detached from the
// request so a client disconnect does not abort a shared in-flight fetch.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshTimeout)
	defer cancel()

	out, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.events.LogError(r.Context(), "Manual refresh failed", err, log.OpFetch,
			log.LogFields{log.FieldSource: s.refresher.SourceName()})
		// The error chain can carry the export URL; it stays in the log.
		writeJSONError(w, http.StatusBadGateway, "refresh failed, the spreadsheet could not be read")
		return
	}
	if out == nil {
		writeJSON(w, http.StatusOK, s.currentState())
		return
	}
	writeJSON(w, http.StatusOK, s.stateFrom(*out))
}

type themeResponse struct {
	Theme string `json:"theme"`
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.store.Theme(r.Context())
	if err != nil {
		s.events.LogError(r.Context(), "Theme lookup failed", err, "get_theme", nil)
		writeJSONError(w, http.StatusInternalServerError, "theme unavailable")
		return
	}
	writeJSON(w, http.StatusOK, themeResponse{Theme: theme})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	theme := p.Get("theme")
	if theme == "" {
		theme = r.URL.Query().Get("theme")
	}
	if !storage.ValidTheme(theme) {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("theme must be %q or %q", storage.ThemeDay, storage.ThemeNight))
		return
	}

	if err := s.store.SetTheme(r.Context(), theme); err != nil {
		if errors.Is(err, storage.ErrInvalidTheme) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.events.LogError(r.Context(), "Theme update failed", err, "set_theme", nil)
		writeJSONError(w, http.StatusInternalServerError, "theme not saved")
		return
	}
	writeJSON(w, http.StatusOK, themeResponse{Theme: theme})
}

// handleStream sends the current state, then one event per refresh cycle,
// until the client leaves or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, events := s.hub.Subscribe(8)
	defer s.hub.Unsubscribe(id)

	w.WriteHeader(http.StatusOK)
	if err := writeSSE(w, Event{Type: EventSnapshot, State: s.currentState()}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.WarnContext(r.Context(), "Streaming unsupported by response writer", "error", err)
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.hub.Done():
			return
		case ev := <-events:
			if err := writeSSE(w, ev); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
