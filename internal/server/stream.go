package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/unklstewy/flight-playback/pkg/playback"
	"github.com/unklstewy/flight-playback/pkg/trajectory"
)

// Stream frame types
const (
	FramePositions = "positions"
	FrameEnd       = "end"
)

const streamWriteWait = 10 * time.Second

// StreamFrame is one JSON message on the playback stream. A positions
// frame carries the active flights at Step; the end frame follows the
// last step and carries no data.
type StreamFrame struct {
	Type   string                        `json:"type"`
	Step   int                           `json:"step"`
	TimeMs int64                         `json:"timeMs"`
	Data   *trajectory.FeatureCollection `json:"data,omitempty"`
}

// handleStream plays the collection back over a WebSocket, one frame per
// ten-minute step from ?step= (default 0) to the last step of the time
// range, every ?intervalMs= milliseconds.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	first, _, err := intParam(r, "step")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if first < 0 {
		respondError(w, http.StatusBadRequest, "step must not be negative")
		return
	}

	interval := time.Duration(max(1, s.playback.StreamIntervalMs)) * time.Millisecond
	ms, ok, err := intParam(r, "intervalMs")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		if ms < 1 || ms < int64(s.playback.MinStreamIntervalMs) {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("intervalMs must be at least %d", max(1, s.playback.MinStreamIntervalMs)))
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	// The step range is fixed when the stream opens
	tr, err := s.engine.ComputeTimeRange()
	if errors.Is(err, playback.ErrEmptyDataset) {
		respondError(w, http.StatusNotFound, "No flight data available")
		return
	}
	if err != nil {
		s.log.Error("Failed to compute time range", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "Failed to compute time range")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.log.Warn("Unable to upgrade playback stream", slog.Any("error", err))
		return
	}
	defer conn.Close()

	lg := s.log.With(
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("remote", r.RemoteAddr))
	lg.Info("Playback stream opened",
		slog.Int64("step", first),
		slog.Int("last_step", tr.TenMinSteps),
		slog.Duration("interval", interval))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drain(conn, cancel)

	sent, err := s.play(ctx, conn, int(first), tr.TenMinSteps, interval)
	switch {
	case errors.Is(err, context.Canceled):
		lg.Info("Playback stream closed by client", slog.Int("frames", sent))
	case err != nil:
		lg.Warn("Playback stream failed", slog.Int("frames", sent), slog.Any("error", err))
	default:
		lg.Info("Playback stream complete", slog.Int("frames", sent))
	}
}

// play writes positions frames for steps first..last, then the end frame
// and a normal close. It returns the number of positions frames sent.
func (s *Server) play(ctx context.Context, conn *websocket.Conn, first, last int, interval time.Duration) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for step := first; step <= last; step++ {
		if step > first {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-ticker.C:
			}
		}

		frame, ok := s.engine.ComputeFrame(playback.AtStep(step))
		if !ok {
			// A reload left no scheduled flights
			break
		}
		fc := playback.FeatureCollection(frame.Positions)
		if err := writeFrame(conn, StreamFrame{
			Type:   FramePositions,
			Step:   step,
			TimeMs: frame.Instant.UnixMilli(),
			Data:   &fc,
		}); err != nil {
			return sent, err
		}
		sent++
	}

	end := StreamFrame{Type: FrameEnd, Step: last}
	if tr, err := s.engine.ComputeTimeRange(); err == nil {
		if at, ok := tr.StepTime(last); ok {
			end.TimeMs = at.UnixMilli()
		}
	}
	if err := writeFrame(conn, end); err != nil {
		return sent, err
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "playback complete")
	return sent, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}

func writeFrame(conn *websocket.Conn, frame StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(frame)
}

// drain reads and discards client messages so control frames are
// processed, and cancels the stream once the client goes away.
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	// Clear the deadline http.Server.ReadTimeout left on the hijacked conn
	conn.SetReadDeadline(time.Time{})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// checkOrigin applies the CORS origin list to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
