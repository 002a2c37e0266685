// Package realtime holds live client connections: the session registry, the
// fan-out hub and the websocket transport on top of them.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/cuchu-notify/internal/domain"
	"github.com/cuchu-notify/internal/pkg/id"
)

// DefaultSendBuffer is the number of frames a session may have queued before it is evicted.
const DefaultSendBuffer = 64

// Frame is the wire unit in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is one authenticated connection. Frames queued with send are drained
// in order by a single writer, so delivery within a session is FIFO.
type Session struct {
	id       string
	identity domain.Identity
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

func NewSession(identity domain.Identity, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Session{
		id:       id.New(),
		identity: identity,
		out:      make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) UserID() string { return s.identity.UserID }

// Outbound yields encoded frames for the writer.
func (s *Session) Outbound() <-chan []byte { return s.out }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close is idempotent. Frames still queued are abandoned.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// send queues frame without blocking. It reports false when the session is
// closed or its buffer is full.
func (s *Session) send(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}
