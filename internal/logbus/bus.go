package logbus

import (
	"sync"
	"time"
)

const (
	TypeLog      = "log"
	TypeRunState = "run_state"
	TypeClaim    = "claim"
)

type Message struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

type LogData struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

type subscriber struct {
	ch    chan Message
	types map[string]struct{}
}

func (s *subscriber) wants(typ string) bool {
	return matches(s.types, typ)
}

// Bus fans out log, run state and claim messages. The last messages are kept
// in a ring so late subscribers (websocket clients) can catch up.
type Bus struct {
	mu     sync.RWMutex
	ring   []Message
	head   int
	size   int
	subs   map[*subscriber]struct{}
	closed bool
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 200
	}
	return &Bus{
		ring: make([]Message, capacity),
		subs: make(map[*subscriber]struct{}),
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	b.ring = nil
	b.size = 0
}

// Snapshot returns the backlog oldest first, restricted to types when given.
func (b *Bus) Snapshot(types ...string) []Message {
	filter := typeSet(types)
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, 0, b.size)
	start := b.head - b.size
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < b.size; i++ {
		msg := b.ring[(start+i)%len(b.ring)]
		if matches(filter, msg.Type) {
			out = append(out, msg)
		}
	}
	return out
}

// Subscribe delivers every later message of the given types (all types when
// none are given) until cancel is called.
func (b *Bus) Subscribe(buffer int, types ...string) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &subscriber{ch: make(chan Message, buffer), types: typeSet(types)}

	b.mu.Lock()
	if b.closed {
		close(s.ch)
		b.mu.Unlock()
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[s]; ok {
			delete(b.subs, s)
			close(s.ch)
		}
	}
	return s.ch, cancel
}

// Publish never blocks: slow subscribers miss messages.
func (b *Bus) Publish(typ string, data any) {
	if b == nil {
		return
	}
	msg := Message{
		Type: typ,
		Time: time.Now().UnixMilli(),
		Data: data,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.ring[b.head] = msg
	b.head = (b.head + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}
	for s := range b.subs {
		if !s.wants(typ) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}

func (b *Bus) Log(level, message string, fields map[string]any) {
	b.Publish(TypeLog, LogData{Level: level, Msg: message, Fields: fields})
}

func (b *Bus) Debug(message string, fields map[string]any) { b.Log("debug", message, fields) }
func (b *Bus) Info(message string, fields map[string]any)  { b.Log("info", message, fields) }
func (b *Bus) Warn(message string, fields map[string]any)  { b.Log("warn", message, fields) }
func (b *Bus) Error(message string, fields map[string]any) { b.Log("error", message, fields) }

func typeSet(types []string) map[string]struct{} {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

func matches(set map[string]struct{}, typ string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[typ]
	return ok
}
