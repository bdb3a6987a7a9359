package intercept

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"cogniscope/internal/protocol"
)

// Reassembler accumulates raw chunks per (host, server, stream) and cuts
// them into complete protocol frames at line boundaries. A single chunk may
// complete zero, one, or many frames. Non-protocol lines are dropped
// silently; they are expected, high-frequency noise.
type Reassembler struct {
	mu        sync.Mutex
	buffers   map[string]string
	maxBuffer int
	log       *zap.Logger
}

// NewReassembler creates a reassembler. maxBuffer caps each per-stream
// buffer; a stream whose pending partial line exceeds it is reset, dropping
// the partial, so an unterminated line cannot grow memory without bound.
func NewReassembler(maxBuffer int, log *zap.Logger) *Reassembler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBuffer <= 0 {
		maxBuffer = 1 << 20
	}
	return &Reassembler{
		buffers:   make(map[string]string),
		maxBuffer: maxBuffer,
		log:       log,
	}
}

// Push appends a chunk to the stream's buffer and returns every frame the
// chunk completed, in order.
func (r *Reassembler) Push(host, server string, stream protocol.StreamKind, chunk []byte) []*protocol.Frame {
	key := host + "/" + server + "/" + string(stream)

	r.mu.Lock()
	buf := r.buffers[key] + string(chunk)

	var frames []*protocol.Frame
	for {
		idx := strings.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := buf[:idx]
		buf = buf[idx+1:]

		if frame, ok := protocol.ParseFrame(line); ok {
			frames = append(frames, frame)
		}
	}

	if len(buf) > r.maxBuffer {
		r.log.Warn("Reassembly buffer overflow, resetting stream",
			zap.String("stream", key),
			zap.Int("pending", len(buf)))
		buf = ""
	}
	r.buffers[key] = buf
	r.mu.Unlock()

	return frames
}

// Reset discards any pending partial line for the given stream.
func (r *Reassembler) Reset(host, server string, stream protocol.StreamKind) {
	key := host + "/" + server + "/" + string(stream)
	r.mu.Lock()
	delete(r.buffers, key)
	r.mu.Unlock()
}

// Pending returns the size in bytes of the stream's unterminated fragment.
func (r *Reassembler) Pending(host, server string, stream protocol.StreamKind) int {
	key := host + "/" + server + "/" + string(stream)
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers[key])
}
