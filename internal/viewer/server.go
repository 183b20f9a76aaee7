// Package viewer shows the composed canvas in a browser. Canvases are
// published as an MJPEG stream and key presses travel back over a websocket
// or POST /api/key.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/reknow/combine-video/internal/logger"
	"github.com/reknow/combine-video/internal/metrics"
	"github.com/reknow/combine-video/pkg/types"
)

// ErrUnknownKey is returned for key names that do not map to a key code.
var ErrUnknownKey = errors.New("unknown key")

// Server serves the viewer endpoints.
type Server struct {
	cfg     Config
	monitor *Monitor
	frames  *FrameBroadcaster
	status  *StatusBroadcaster
	metrics *metrics.Metrics
	keys    chan types.Key

	mu   sync.Mutex
	last []byte

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer returns a configured viewer server. m may be nil.
func NewServer(cfg Config, m *metrics.Metrics) *Server {
	def := DefaultConfig()
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.KeyBuffer <= 0 {
		cfg.KeyBuffer = def.KeyBuffer
	}
	if cfg.Title == "" {
		cfg.Title = def.Title
	}

	monitor := NewMonitor(cfg.RunID)
	frames := NewFrameBroadcaster()

	return &Server{
		cfg:     cfg,
		monitor: monitor,
		frames:  frames,
		status:  NewStatusBroadcaster(monitor, frames, cfg.StatusInterval),
		metrics: m,
		keys:    make(chan types.Key, cfg.KeyBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleIndex)
	r.Get("/stream", s.handleStream)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/status/stream", s.handleStatusStream)
	r.Post("/api/key", s.handleKey)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("viewer listen %s: %w", s.cfg.Addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.status.Start()

	logger.Info("Viewer", "Listening on http://%s", ln.Addr())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Viewer", "Server error: %v", err)
		}
	}()
	return nil
}

// Shutdown disconnects stream clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.monitor.MarkDone()
	s.status.Stop()
	s.frames.CloseAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Show publishes one canvas to all connected clients.
func (s *Server) Show(c *types.Composite, img *image.RGBA) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		return fmt.Errorf("encode canvas: %w", err)
	}
	data := buf.Bytes()

	s.mu.Lock()
	s.last = data
	s.mu.Unlock()

	s.frames.Broadcast(data)
	s.monitor.Update(c)
	return nil
}

// Keys returns the channel of key presses received from clients.
func (s *Server) Keys() <-chan types.Key {
	return s.keys
}

// PushKey queues a key press. It reports false when the queue is full.
func (s *Server) PushKey(k types.Key) bool {
	select {
	case s.keys <- k:
		return true
	default:
		logger.Warn("Viewer", "Key queue full, dropping %q", rune(k))
		return false
	}
}

// Status returns the current viewer status.
func (s *Server) Status() Status {
	return s.status.Status()
}

func (s *Server) lastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(renderIndex(s.cfg.Title)))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	streamMJPEGFromChannel(w, r, frameCh, s.lastFrame())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if wantsProtobuf(r) {
		data, err := marshalStatusProto(st)
		if err != nil {
			writeJSONWithStatus(w, map[string]string{"error": err.Error()}, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(data)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.status.Subscribe()
	defer s.status.Unsubscribe(id)
	streamStatusEventsFromChannel(w, r, eventCh, s.status.Event(), wantsProtobuf(r))
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]string{"error": "invalid body"}, http.StatusBadRequest)
		return
	}

	k, err := ParseKey(req.Key)
	if err != nil {
		writeJSONWithStatus(w, map[string]string{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	if !s.PushKey(k) {
		writeJSONWithStatus(w, map[string]string{"error": "key queue full"}, http.StatusServiceUnavailable)
		return
	}
	writeJSONWithStatus(w, map[string]string{"status": "queued"}, http.StatusAccepted)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Viewer", "Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logger.Debug("Viewer", "Websocket client connected from %s", r.RemoteAddr)
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Viewer", "Websocket read error: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		k, err := decodeKeyMessage(payload)
		if err != nil {
			logger.Debug("Viewer", "Ignoring websocket message %q: %v", payload, err)
			continue
		}
		s.PushKey(k)
	}
}

// ParseKey maps a browser key name to a key code.
func ParseKey(name string) (types.Key, error) {
	switch strings.ToLower(name) {
	case "escape", "esc":
		return types.KeyEscape, nil
	}
	runes := []rune(name)
	if len(runes) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return types.Key(runes[0]), nil
}

// decodeKeyMessage accepts either {"key":"q"} or a bare key name.
func decodeKeyMessage(payload []byte) (types.Key, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var req KeyRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return 0, err
		}
		return ParseKey(req.Key)
	}
	return ParseKey(string(trimmed))
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP", "%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
