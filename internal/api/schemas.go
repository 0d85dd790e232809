package api

import (
	"time"

	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/overlay"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type MarksResponse struct {
	Marks []float64 `json:"marks"`
	Count int       `json:"count"`
	// Summary is the text block the overlay shows, line by line.
	Summary []string `json:"summary"`
}

type AddMarkRequest struct {
	Time *float64 `json:"time,omitempty"`
}

type MarkResponse struct {
	Time      float64 `json:"time"`
	Formatted string  `json:"formatted"`
}

type DispatchRequest struct {
	Target string   `json:"target"`
	Flags  []string `json:"flags,omitempty"`
}

type DispatchResponse struct {
	DispatchID string `json:"dispatch_id"`
}

type DispatchEntry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	MediaPath  string    `json:"media_path,omitempty"`
	Marks      []float64 `json:"marks"`
	Flags      []string  `json:"flags"`
	Status     string    `json:"status"`
	Output     string    `json:"output,omitempty"`
	CreatedAt  string    `json:"created_at"`
	FinishedAt string    `json:"finished_at,omitempty"`
}

type HistoryResponse struct {
	Dispatches []DispatchEntry `json:"dispatches"`
}

// MarksEvent is pushed to stream subscribers.
type MarksEvent struct {
	Type  string    `json:"type"`
	Marks []float64 `json:"marks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewMarksResponse(times []float64) MarksResponse {
	if times == nil {
		times = []float64{}
	}
	return MarksResponse{
		Marks:   times,
		Count:   len(times),
		Summary: overlay.SummaryLines(times),
	}
}

func DispatchToEntry(d *history.Dispatch) DispatchEntry {
	e := DispatchEntry{
		ID:        d.ID,
		Kind:      d.Kind,
		Target:    d.Target,
		MediaPath: d.MediaPath,
		Marks:     d.Marks,
		Flags:     d.Flags,
		Status:    d.Status,
		Output:    d.Output,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
	if e.Marks == nil {
		e.Marks = []float64{}
	}
	if e.Flags == nil {
		e.Flags = []string{}
	}
	if d.FinishedAt != nil {
		e.FinishedAt = d.FinishedAt.Format(time.RFC3339)
	}
	return e
}
