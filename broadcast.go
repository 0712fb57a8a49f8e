package sentinel

import (
	"context"
	"log/slog"
	"sync"
)

// BusMessage is the envelope every Bus push sends to subscribers (§4.H).
type BusMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Subscriber is a sink a Bus can push BusMessages to, implemented by the
// WebSocket transport adapter (internal/wsapi) wrapping one client
// connection. Send must not block past the transport's own internal
// buffering; QueueDepth reports how many messages are currently queued for
// delivery so the Bus can enforce the backpressure high-water mark.
type Subscriber interface {
	ID() string
	Send(msg BusMessage) error
	QueueDepth() int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithHighWaterMark sets the per-subscriber pending-message limit past which
// a subscriber is dropped rather than sent to. Default 1024 (§4.H).
func WithHighWaterMark(n int) BusOption {
	return func(b *Bus) { b.highWaterMark = n }
}

// WithInitialWindow sets how many recent events are replayed to a new
// subscriber. Default 500 (§4.H).
func WithInitialWindow(n int) BusOption {
	return func(b *Bus) { b.initialWindow = n }
}

// WithBusLogger attaches a structured logger.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// WithBusInstruments attaches counters for sent/dropped messages.
func WithBusInstruments(inst *Instruments) BusOption {
	return func(b *Bus) { b.inst = inst }
}

// RecentEventsFunc supplies the initial event window for a new subscriber.
type RecentEventsFunc func(ctx context.Context, limit int) ([]Event, error)

// TerminalStatusFunc supplies the current terminal-status snapshot for a new
// subscriber (active agent executions, most recently observed).
type TerminalStatusFunc func(ctx context.Context) (any, error)

// Bus is the live Broadcast Bus (§4.H): a set of subscribed dashboards that
// receive events and hook-coverage snapshots as they happen. Delivery is
// best-effort and drop-on-error — a subscriber whose Send fails, or whose
// queue exceeds the high-water mark, is ejected from the set. Sends to
// distinct subscribers are independent of one another.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]Subscriber

	highWaterMark int
	initialWindow int
	logger        *slog.Logger
	inst          *Instruments

	recentEvents   RecentEventsFunc
	terminalStatus TerminalStatusFunc
}

// NewBus creates an empty Bus.
func NewBus(recentEvents RecentEventsFunc, terminalStatus TerminalStatusFunc, opts ...BusOption) *Bus {
	b := &Bus{
		subs:          make(map[string]Subscriber),
		highWaterMark: 1024,
		initialWindow: 500,
		logger:        nopLogger,
		recentEvents:  recentEvents,
		terminalStatus: terminalStatus,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registers sub and immediately pushes the initial recent-event
// window and terminal-status snapshot to it (§4.H).
func (b *Bus) Subscribe(ctx context.Context, sub Subscriber) {
	b.mu.Lock()
	b.subs[sub.ID()] = sub
	b.mu.Unlock()
	b.logger.Info("bus: subscriber joined", "id", sub.ID(), "total", b.Count())

	if b.recentEvents != nil {
		recent, err := b.recentEvents(ctx, b.initialWindow)
		if err != nil {
			b.logger.Error("bus: failed to load initial window", "error", err)
		} else {
			if !b.sendTo(sub, BusMessage{Type: "initial", Data: recent}) {
				b.Unsubscribe(sub.ID())
				return
			}
		}
	}
	if b.terminalStatus != nil {
		status, err := b.terminalStatus(ctx)
		if err != nil {
			b.logger.Error("bus: failed to load terminal status", "error", err)
		} else {
			if !b.sendTo(sub, BusMessage{Type: "terminal_status", Data: status}) {
				b.Unsubscribe(sub.ID())
				return
			}
		}
	}
}

// Unsubscribe removes a subscriber by id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Count reports the number of currently subscribed connections.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// BroadcastEvent delivers {type: "event", data: saved} to every subscriber.
func (b *Bus) BroadcastEvent(saved Event) {
	b.broadcast(BusMessage{Type: "event", Data: saved})
}

// BroadcastHookCoverage delivers {type: "hook_status_update", data: snapshot}.
func (b *Bus) BroadcastHookCoverage(snapshot HookCoverageSnapshot) {
	b.broadcast(BusMessage{Type: "hook_status_update", Data: snapshot})
}

func (b *Bus) broadcast(msg BusMessage) {
	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	var dropped []string
	for _, s := range targets {
		if !b.sendTo(s, msg) {
			dropped = append(dropped, s.ID())
		}
	}
	if len(dropped) > 0 {
		b.mu.Lock()
		for _, id := range dropped {
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}
}

// sendTo delivers msg to a single subscriber. Returns false on send failure
// or backpressure overflow; the caller then removes the subscriber.
func (b *Bus) sendTo(s Subscriber, msg BusMessage) bool {
	if s.QueueDepth() >= b.highWaterMark {
		b.logger.Warn("bus: dropping slow subscriber", "id", s.ID(), "queue_depth", s.QueueDepth())
		if b.inst != nil {
			b.inst.BroadcastDropped.Add(context.Background(), 1)
		}
		return false
	}
	if err := s.Send(msg); err != nil {
		b.logger.Warn("bus: send failed, dropping subscriber", "id", s.ID(), "error", err)
		if b.inst != nil {
			b.inst.BroadcastDropped.Add(context.Background(), 1)
		}
		return false
	}
	if b.inst != nil {
		b.inst.BroadcastSent.Add(context.Background(), 1)
	}
	return true
}
