package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/camera"
	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/MeKo-Tech/qrlens/internal/present"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/MeKo-Tech/qrlens/internal/session"
	"github.com/MeKo-Tech/qrlens/internal/utils"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// LiveRequest is a control message sent by a live-scan client as a text
// frame. Camera images are sent as binary frames.
type LiveRequest struct {
	Type     string   `json:"type"` // resume, facing, zoom, torch, rotation, stats
	Facing   string   `json:"facing,omitempty"`
	Zoom     *float64 `json:"zoom,omitempty"`
	Torch    *bool    `json:"torch,omitempty"`
	Rotation int      `json:"rotation,omitempty"`
}

// LiveMessage is a message sent to a live-scan client.
type LiveMessage struct {
	Type      string          `json:"type"` // ready, detected, state, control, stats, error
	Session   string          `json:"session,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	URL       string          `json:"url,omitempty"`
	Scanned   string          `json:"scanned,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	State     string          `json:"state,omitempty"`
	Control   *camera.Control `json:"control,omitempty"`
	Stats     *scan.Stats     `json:"stats,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
}

// lockedWriter serializes writes; detections arrive on decoder goroutines
// while the read loop answers control messages.
type lockedWriter struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (w *lockedWriter) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(messageType, data)
}

// liveSession is the per-connection scan pipeline: a remote camera fed by
// the client, a session with its own coordinator, and the client as
// presenter.
type liveSession struct {
	id       string
	out      WebSocketConnWriter
	conn     io.Closer
	remote   *camera.Remote
	sess     *session.Session
	rotation atomic.Int32
	logger   *slog.Logger

	mu      sync.Mutex
	dismiss func()

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Server) newLiveSession(out WebSocketConnWriter) *liveSession {
	ls := &liveSession{
		id:     uuid.NewString(),
		out:    &lockedWriter{conn: out},
		closed: make(chan struct{}),
	}
	ls.logger = s.logger.With("session", ls.id)
	ls.remote = camera.NewRemote(func(c camera.Control) {
		ls.send(LiveMessage{Type: "control", Control: &c})
	})

	opts := append([]scan.Option{}, s.scanOptions...)
	opts = append(opts, scan.WithStateObserver(func(_, to scan.State) {
		ls.send(LiveMessage{Type: "state", State: to.String()})
	}))
	ls.sess = session.New(ls.remote, s.decoder,
		session.WithID(ls.id),
		session.WithLogger(s.logger),
		session.WithPresenter(session.PresenterFunc(ls.present)),
		session.WithScanOptions(opts...),
	)
	return ls
}

func (ls *liveSession) present(_ context.Context, d scan.Detection, dismiss func()) {
	ls.mu.Lock()
	ls.dismiss = dismiss
	ls.mu.Unlock()

	r := present.NewResult(d)
	ls.send(LiveMessage{
		Type:    "detected",
		Session: ls.id,
		Payload: r.Payload,
		URL:     r.URL,
		Scanned: r.Scanned,
		Seq:     d.Seq,
	})
}

func (ls *liveSession) resume() {
	ls.mu.Lock()
	dismiss := ls.dismiss
	ls.dismiss = nil
	ls.mu.Unlock()

	if dismiss != nil {
		dismiss()
		return
	}
	ls.sess.Resume()
}

func (ls *liveSession) pushFrame(data []byte) {
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		ls.sendError("invalid_frame", fmt.Sprintf("Failed to decode frame: %v", err))
		return
	}
	ls.remote.Push(frame.New(img, int(ls.rotation.Load()), 0, nil))
}

func (ls *liveSession) handleControl(data []byte) {
	var req LiveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		ls.sendError("invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	ctx := context.Background()
	switch req.Type {
	case "resume":
		ls.resume()
	case "facing":
		f, err := camera.ParseFacing(req.Facing)
		if err != nil {
			ls.sendError("invalid_request", err.Error())
			return
		}
		ls.mu.Lock()
		ls.dismiss = nil
		ls.mu.Unlock()
		if err := ls.sess.SetFacing(ctx, f); err != nil {
			ls.sendError("camera_error", err.Error())
		}
	case "zoom":
		if req.Zoom == nil {
			ls.sendError("invalid_request", "zoom value required")
			return
		}
		if err := ls.sess.SetZoom(ctx, *req.Zoom); err != nil {
			ls.sendError("invalid_zoom", err.Error())
		}
	case "torch":
		if req.Torch == nil {
			ls.sendError("invalid_request", "torch value required")
			return
		}
		if err := ls.sess.SetTorch(ctx, *req.Torch); err != nil {
			errType := "camera_error"
			if errors.Is(err, camera.ErrTorchUnavailable) {
				errType = "torch_unavailable"
			}
			ls.sendError(errType, err.Error())
		}
	case "rotation":
		ls.rotation.Store(int32(frame.NormalizeRotation(req.Rotation))) //nolint:gosec // G115: 0..270
	case "stats":
		st := ls.sess.Stats()
		ls.send(LiveMessage{Type: "stats", Session: ls.id, Stats: &st})
	default:
		ls.sendError("invalid_request", "Unsupported request type: "+req.Type)
	}
}

func (ls *liveSession) send(msg LiveMessage) {
	select {
	case <-ls.closed:
		return
	default:
	}
	data, err := json.Marshal(msg)
	if err != nil {
		ls.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	if err := ls.out.WriteMessage(websocket.TextMessage, data); err != nil {
		ls.logger.Debug("Failed to send WebSocket message", "type", msg.Type, "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (ls *liveSession) sendError(errorType, message string) {
	ls.send(LiveMessage{Type: "error", Session: ls.id, Error: message, ErrorType: errorType})
}

func (ls *liveSession) close() {
	ls.closeOnce.Do(func() {
		close(ls.closed)
		if err := ls.sess.Close(); err != nil {
			ls.logger.Debug("Session close failed", "error", err)
		}
		if ls.conn != nil {
			_ = ls.conn.Close()
		}
	})
}

// liveScanHandler upgrades to a WebSocket and runs one scan session for the
// connection.
func (s *Server) liveScanHandler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	ls := s.newLiveSession(conn)
	ls.conn = conn
	s.register(ls)
	defer s.unregister(ls)
	defer ls.close()

	ls.logger.Info("Live scan connection established", "remote_addr", r.RemoteAddr)

	if err := ls.sess.Start(context.Background()); err != nil {
		ls.sendError("camera_error", err.Error())
		return
	}
	ls.send(LiveMessage{Type: "ready", Session: ls.id, State: ls.sess.State().String()})

	s.readLoop(conn, ls)
	ls.logger.Info("Live scan connection closed", "stats", ls.sess.Stats())
}

// readLoop processes messages until the client disconnects.
func (s *Server) readLoop(conn *websocket.Conn, ls *liveSession) {
	conn.SetReadLimit(s.maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Send ping messages to keep connection alive
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ls.closed:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.BinaryMessage:
			ls.pushFrame(data)
		case websocket.TextMessage:
			ls.handleControl(data)
		}
	}
}

func (s *Server) register(ls *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ls.id] = ls
}

func (s *Server) unregister(ls *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, ls.id)
}
