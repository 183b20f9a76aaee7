package viewer

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/reknow/combine-video/internal/logger"
)

// FrameBroadcaster manages fanout of JPEG frames to multiple clients.
type FrameBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	dropped uint64
}

// NewFrameBroadcaster creates an empty broadcaster.
func NewFrameBroadcaster() *FrameBroadcaster {
	return &FrameBroadcaster{
		clients: make(map[int]chan []byte),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	fb.clients[id] = ch

	logger.Debug("FrameBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("FrameBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(fb.clients))
	}
}

// ClientCount returns the number of connected stream clients.
func (fb *FrameBroadcaster) ClientCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Broadcast hands a frame to every client. Slow clients miss the frame.
func (fb *FrameBroadcaster) Broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
			fb.dropped++
		}
	}
}

// Dropped returns how many frame deliveries were skipped for slow clients.
func (fb *FrameBroadcaster) Dropped() uint64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dropped
}

// CloseAll disconnects every client.
func (fb *FrameBroadcaster) CloseAll() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
}

// SerializedEvent holds pre-serialized data in both formats.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
}

// StatusBroadcaster publishes the monitor status to SSE clients at a fixed
// interval.
type StatusBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent
	nextID   int
	monitor  *Monitor
	frames   *FrameBroadcaster
	stop     chan struct{}
	stopped  bool
	interval time.Duration
}

// NewStatusBroadcaster creates a status broadcaster.
func NewStatusBroadcaster(monitor *Monitor, frames *FrameBroadcaster, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  make(map[int]chan *SerializedEvent),
		monitor:  monitor,
		frames:   frames,
		stop:     make(chan struct{}),
		interval: interval,
	}
}

// Subscribe adds a new SSE client.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, 4)
	sb.clients[id] = ch
	return id, ch
}

// Unsubscribe removes an SSE client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
	}
}

// Start begins the periodic broadcast loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	if !sb.stopped {
		close(sb.stop)
		sb.stopped = true
	}
	sb.mu.Unlock()
}

func (sb *StatusBroadcaster) run() {
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			sb.mu.Lock()
			clientCount := len(sb.clients)
			sb.mu.Unlock()
			if clientCount == 0 {
				continue
			}

			if event := sb.Event(); event != nil {
				sb.broadcast(event)
			}
		}
	}
}

// Status returns the current status including the stream client count.
func (sb *StatusBroadcaster) Status() Status {
	st := sb.monitor.Snapshot()
	st.Clients = sb.frames.ClientCount()
	return st
}

// Event serializes the current status in both formats.
func (sb *StatusBroadcaster) Event() *SerializedEvent {
	st := sb.Status()

	jsonData, err := json.Marshal(st)
	if err != nil {
		logger.Error("StatusBroadcaster", "JSON marshal error: %v", err)
		return nil
	}

	pbData, err := marshalStatusProto(st)
	if err != nil {
		logger.Error("StatusBroadcaster", "Protobuf marshal error: %v", err)
		return nil
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}
}

func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, ch := range sb.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event
		}
	}
}

// statusStruct converts a Status into a protobuf Struct.
func statusStruct(st Status) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"run_id":             st.RunID,
		"tick":               st.Tick,
		"epoch":              st.Epoch,
		"time":               st.Time,
		"record_start_epoch": st.RecordStartEpoch,
		"recording":          st.Recording,
		"splash":             st.Splash,
		"slide":              st.Slide,
		"frames_displayed":   st.FramesDisplayed,
		"clients":            st.Clients,
		"done":               st.Done,
	})
}

func marshalStatusProto(st Status) ([]byte, error) {
	s, err := statusStruct(st)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}
