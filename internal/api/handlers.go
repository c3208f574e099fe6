// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/vod"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.opts.Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": s.svc.Describe(r.Context()),
	})
}

// channelFromRequest resolves the {camera}/{channel} route params.
func (s *Server) channelFromRequest(w http.ResponseWriter, r *http.Request) (*vod.Channel, bool) {
	camera := chi.URLParam(r, "camera")
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "channel must be an integer")
		return nil, false
	}
	ch, err := s.svc.Channel(camera, channel)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return ch, true
}

type monthResponse struct {
	Camera  string `json:"camera"`
	Channel int    `json:"channel"`
	Month   string `json:"month"`
	Days    []int  `json:"days"`
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelFromRequest(w, r)
	if !ok {
		return
	}
	ym, err := vod.ParseYearMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "month must look like 2023-05")
		return
	}

	st, err := ch.MonthStatus(r.Context(), ym)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, monthResponse{
		Camera:  ch.Camera(),
		Channel: ch.Number(),
		Month:   ym.String(),
		Days:    st.Days,
	})
}

type streamView struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	FrameRate   int    `json:"frame_rate,omitempty"`
	PlaybackURL string `json:"playback_url"`
}

type recordingView struct {
	Start           time.Time                     `json:"start"`
	End             time.Time                     `json:"end"`
	DurationSeconds float64                       `json:"duration_seconds"`
	Triggers        []string                      `json:"triggers"`
	Streams         map[vod.StreamType]streamView `json:"streams"`
}

func (s *Server) recordingView(ch *vod.Channel, rec *vod.Recording) recordingView {
	view := recordingView{
		Start:           rec.Start,
		End:             rec.End,
		DurationSeconds: rec.Duration().Seconds(),
		Triggers:        rec.Trigger().Labels(),
		Streams:         map[vod.StreamType]streamView{},
	}
	for stream, fi := range rec.Streams {
		view.Streams[stream] = streamView{
			Name:        fi.Name,
			Size:        fi.Size,
			Width:       fi.Width,
			Height:      fi.Height,
			FrameRate:   fi.FrameRate,
			PlaybackURL: fmt.Sprintf("/vod/%s/%d/%s", ch.Camera(), ch.Number(), fi.Name),
		}
	}
	return view
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelFromRequest(w, r)
	if !ok {
		return
	}

	end := time.Now()
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "end must be RFC 3339")
			return
		}
		end = t
	}
	start := end.Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "start must be RFC 3339")
			return
		}
		start = t
	}

	recs, err := ch.Search(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]recordingView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, s.recordingView(ch, rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"camera":     ch.Camera(),
		"channel":    ch.Number(),
		"start":      start,
		"end":        end,
		"recordings": views,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelFromRequest(w, r)
	if !ok {
		return
	}
	rec, found := ch.Latest()
	if !found {
		writeError(w, r, http.StatusNotFound, "no recordings cached")
		return
	}
	writeJSON(w, http.StatusOK, s.recordingView(ch, rec))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refreshing.CompareAndSwap(false, true) {
		writeError(w, r, http.StatusConflict, "refresh already running")
		return
	}

	reqID := log.RequestIDFromContext(r.Context())
	go func() {
		defer s.refreshing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.svc.Refresh(log.ContextWithRequestID(ctx, reqID)); err != nil {
			s.logger.Error().Err(err).Msg("manual refresh failed")
			return
		}
		s.SetReady(true)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelFromRequest(w, r)
	if !ok {
		return
	}

	key := fmt.Sprintf("snapshot:%s:%d", ch.Camera(), ch.Number())
	if img, found := s.cache.Get(r.Context(), key); found {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(img)
		return
	}

	img, err := ch.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.cache.Set(r.Context(), key, img, s.opts.SnapshotTTL)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(img)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelFromRequest(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "*")
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "missing recording name")
		return
	}

	// ?stream= swaps the requested file for another quality of the same
	// recording when the cache knows about it.
	if raw := r.URL.Query().Get("stream"); raw != "" {
		stream, ok := vod.ParseStreamType(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "stream must be main, sub or ext")
			return
		}
		if rec, found := ch.Cache().FindByName(name); found {
			if _, fi, ok := rec.Stream(stream); ok {
				name = fi.Name
			}
		}
	}

	clip, err := ch.OpenClip(r.Context(), name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer func() { _ = clip.Body.Close() }()

	if clip.ContentType != "" {
		w.Header().Set("Content-Type", clip.ContentType)
	} else {
		w.Header().Set("Content-Type", "video/mp4")
	}
	if clip.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(clip.ContentLength, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(name)))
	if _, err := io.Copy(w, clip.Body); err != nil {
		s.logger.Debug().Err(err).
			Str(log.FieldCamera, ch.Camera()).
			Str(log.FieldRecording, name).
			Msg("playback stream aborted")
	}
}
