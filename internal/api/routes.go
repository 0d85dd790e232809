package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mtpick/timepicker/internal/config"
	"github.com/mtpick/timepicker/internal/export"
	"github.com/mtpick/timepicker/internal/marks"
	"github.com/mtpick/timepicker/internal/picker"
)

// MarkService is what the API drives. picker.Service implements it.
type MarkService interface {
	Marks(ctx context.Context) ([]float64, error)
	Add(ctx context.Context, t *float64) (float64, error)
	RemoveClosest(ctx context.Context, t *float64) (float64, error)
	Clear(ctx context.Context) error
	Snapshot(ctx context.Context) ([]float64, string, error)
	RunProgram(ctx context.Context, target string, flags []string) (string, error)
	RunScript(ctx context.Context, target string, flags []string) (string, error)
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		if cfg.Token != "" {
			r.Use(AuthMiddleware(cfg.Token, cfg.Logger))
		}

		r.Get("/marks", listMarksHandler(cfg))
		r.Post("/marks", addMarkHandler(cfg))
		r.Delete("/marks", clearMarksHandler(cfg))
		r.Delete("/marks/closest", removeClosestHandler(cfg))
		r.Get("/marks/export.edl", exportEDLHandler(cfg))
		r.Post("/dispatch/run", dispatchHandler(cfg, cfg.Marks.RunProgram))
		r.Post("/dispatch/script", dispatchHandler(cfg, cfg.Marks.RunScript))
		r.Get("/history", historyHandler(cfg))
		if cfg.Hub != nil {
			r.Get("/marks/stream", cfg.Hub.ServeHTTP)
		}
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func listMarksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		times, err := cfg.Marks.Marks(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, NewMarksResponse(times))
	}
}

func addMarkHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddMarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Time != nil && *req.Time < 0 {
			WriteError(w, http.StatusBadRequest, "time must not be negative", "BAD_REQUEST")
			return
		}

		t, err := cfg.Marks.Add(r.Context(), req.Time)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, MarkResponse{Time: t, Formatted: marks.FormatDuration(t)})
	}
}

func removeClosestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var at *float64
		if raw := r.URL.Query().Get("time"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "time must be a number", "BAD_REQUEST")
				return
			}
			at = &v
		}

		t, err := cfg.Marks.RemoveClosest(r.Context(), at)
		if errors.Is(err, marks.ErrEmptyStore) {
			WriteError(w, http.StatusNotFound, err.Error(), "EMPTY")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, MarkResponse{Time: t, Formatted: marks.FormatDuration(t)})
	}
}

func clearMarksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Marks.Clear(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// exportEDLHandler renders the segments between consecutive marks as an EDL.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fps := export.DefaultFrameRate
		if raw := r.URL.Query().Get("fps"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 || v > 240 {
				WriteError(w, http.StatusBadRequest, "fps must be a number in (0, 240]", "BAD_REQUEST")
				return
			}
			fps = v
		}

		times, media, err := cfg.Marks.Snapshot(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		segments := export.Segments(times, media)
		if len(segments) == 0 {
			WriteError(w, http.StatusConflict, "at least two time points are needed", "TOO_FEW_MARKS")
			return
		}

		title := r.URL.Query().Get("title")
		if title == "" {
			title = export.Title(media)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="timepicker.edl"`)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, export.GenerateEDL(segments, title, fps))
	}
}

func dispatchHandler(cfg ServerConfig, run func(context.Context, string, []string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Target == "" {
			WriteError(w, http.StatusBadRequest, "target is required", "BAD_REQUEST")
			return
		}

		id, err := run(r.Context(), req.Target, req.Flags)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, DispatchResponse{DispatchID: id})
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteJSON(w, http.StatusOK, HistoryResponse{Dispatches: []DispatchEntry{}})
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		rows, err := cfg.History.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list history", "INTERNAL_ERROR")
			return
		}

		resp := HistoryResponse{Dispatches: make([]DispatchEntry, len(rows))}
		for i, d := range rows {
			resp.Dispatches[i] = DispatchToEntry(d)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, marks.ErrDuplicateTimestamp):
		WriteError(w, http.StatusConflict, err.Error(), "DUPLICATE")
	case errors.Is(err, marks.ErrEmptyStore):
		WriteError(w, http.StatusConflict, err.Error(), "EMPTY")
	case errors.Is(err, picker.ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusServiceUnavailable, "picker unavailable", "UNAVAILABLE")
	default:
		WriteError(w, http.StatusBadGateway, err.Error(), "PLAYER_ERROR")
	}
}
