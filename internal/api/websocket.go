package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/viewheel/backend/internal/upload"
)

// WebSocket message types for the progress stream
const (
	// Client -> Server
	MsgTypePing = "ping"

	// Server -> Client
	MsgTypeConnected = "connected"
	MsgTypeProgress  = "progress"
	MsgTypeComplete  = "complete"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	writeWait           = 10 * time.Second
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JobWatcher finds the delivery attempt running for a payment.
type JobWatcher interface {
	LatestJobForTx(tx string) (*upload.Job, bool)
}

// ProgressHandler streams delivery progress for one transaction signature.
// The browser opens it before posting the upload so it can show each
// stage as it happens.
type ProgressHandler struct {
	jobs     JobWatcher
	upgrader websocket.Upgrader
	interval time.Duration
	log      *slog.Logger
}

// NewProgressHandler creates a progress stream handler.
func NewProgressHandler(jobs JobWatcher, log *slog.Logger) *ProgressHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ProgressHandler{
		jobs: jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4 * 1024,
		},
		interval: defaultPollInterval,
		log:      log.With("component", "progress"),
	}
}

// HandleProgress upgrades the connection and sends the job for ?tx= each
// time it changes, closing once the attempt finishes. Attempts that had
// already finished before the client connected are ignored.
func (h *ProgressHandler) HandleProgress(c echo.Context) error {
	tx := c.QueryParam("tx")
	if tx == "" {
		return NewValidationError("tx", "tx is required")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := h.log.With("tx", tx)
	log.Debug("progress client connected")

	connectedAt := time.Now()
	if err := h.send(ws, WSMessage{Type: MsgTypeConnected, ID: tx}); err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	pings := make(chan struct{}, 1)
	go h.readLoop(ws, pings, cancel, log)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *upload.Job
	for {
		select {
		case <-ctx.Done():
			log.Debug("progress client disconnected")
			return nil
		case <-pings:
			if err := h.send(ws, WSMessage{Type: MsgTypePong}); err != nil {
				return nil
			}
		case <-ticker.C:
			job, ok := h.jobs.LatestJobForTx(tx)
			if !ok || stale(job, connectedAt) || !changed(last, job) {
				continue
			}
			last = job

			msgType := MsgTypeProgress
			switch job.Status {
			case upload.StatusComplete:
				msgType = MsgTypeComplete
			case upload.StatusError:
				msgType = MsgTypeError
			}
			if err := h.send(ws, WSMessage{Type: msgType, ID: job.ID, Payload: mustJSON(job)}); err != nil {
				return nil
			}
			if job.Finished() {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)),
					time.Now().Add(writeWait))
				return nil
			}
		}
	}
}

// readLoop answers pings and cancels ctx when the client goes away.
func (h *ProgressHandler) readLoop(ws *websocket.Conn, pings chan<- struct{}, cancel context.CancelFunc, log *slog.Logger) {
	defer cancel()
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("progress connection error", "error", err)
			}
			return
		}
		if msg.Type != MsgTypePing {
			continue
		}
		select {
		case pings <- struct{}{}:
		default:
		}
	}
}

func (h *ProgressHandler) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(msg); err != nil {
		h.log.Warn("failed to send progress message", "type", msg.Type, "error", err)
		return err
	}
	return nil
}

func stale(job *upload.Job, connectedAt time.Time) bool {
	return job.Finished() && job.CompletedAt != nil && job.CompletedAt.Before(connectedAt)
}

func changed(prev, next *upload.Job) bool {
	return prev == nil || prev.ID != next.ID || prev.Status != next.Status ||
		prev.Stage != next.Stage || prev.Progress != next.Progress
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
