package http

import (
	"time"

	"fundboard/internal/core"
	"fundboard/internal/refresh"
)

// StateResponse is the JSON body of /api/state and of stream events.
type StateResponse struct {
	Ready     bool          `json:"ready"`
	Source    string        `json:"source"`
	Snapshot  string        `json:"snapshot,omitempty"`
	Changed   bool          `json:"changed"`
	Rows      int           `json:"rows"`
	FetchedAt *time.Time    `json:"fetched_at,omitempty"`
	Display   *core.Display `json:"display,omitempty"`
}

func (s *Server) stateFrom(out refresh.Outcome) StateResponse {
	d := out.Display(s.loc)
	fetched := out.FetchedAt.UTC()
	return StateResponse{
		Ready:     true,
		Source:    out.Source,
		Snapshot:  out.Snapshot,
		Changed:   out.Changed,
		Rows:      out.Rows,
		FetchedAt: &fetched,
		Display:   &d,
	}
}

// currentState returns the latest outcome, or a not-ready state before the
// first successful cycle.
func (s *Server) currentState() StateResponse {
	out, ok := s.refresher.Latest()
	if !ok {
		return StateResponse{Source: s.refresher.SourceName()}
	}
	return s.stateFrom(out)
}

func eventType(out refresh.Outcome) string {
	switch {
	case out.Celebrate:
		return EventCelebration
	case out.Changed:
		return EventChange
	default:
		return EventRefresh
	}
}

// pageData feeds index.html.
type pageData struct {
	State StateResponse
	Theme string
}
