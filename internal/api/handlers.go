package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/themethumb/internal/protocol"
	"github.com/mattjoyce/themethumb/internal/thumbnail"
)

// handleHealthz reports worker state. A broken worker is "degraded", not an
// error: the API still answers, just without thumbnails.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var stats thumbnail.Stats
	if err := s.loop.Call(r.Context(), func() { stats = s.thumbs.Stats() }); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "render loop unavailable")
		return
	}

	status := "ok"
	if stats.Broken {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Thumbnails:    stats,
	})
}

// handleThumbnail handles GET /thumbnail/{kind} and answers with a PNG, or
// 204 when there is no thumbnail.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	kind, err := protocol.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	q := r.URL.Query()
	req := &protocol.Request{
		Kind:        kind,
		WidgetTheme: q.Get("widget"),
		ColorScheme: q.Get("color_scheme"),
		WindowTheme: q.Get("wm"),
		IconTheme:   q.Get("icon"),
		Font:        q.Get("font"),
	}
	if _, err := protocol.MarshalRequest(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RenderWait)
	defer cancel()

	result := make(chan *image.RGBA, 1)
	var renderID string
	err = s.loop.Call(ctx, func() {
		renderID = s.thumbs.RenderAsync(req, func(img *image.RGBA, _ any) {
			result <- img
		}, nil, nil)
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "render loop unavailable")
		return
	}

	var img *image.RGBA
	select {
	case img = <-result:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.writeError(w, http.StatusGatewayTimeout, "timed out waiting for thumbnail")
		}
		return
	}

	w.Header().Set("X-Render-ID", renderID)
	if img == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.logger.Error("failed to encode thumbnail", "render_id", renderID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to encode thumbnail")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
