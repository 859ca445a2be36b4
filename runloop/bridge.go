package runloop

import (
	"sync"
	"time"
)

// Bridge is the caller-supplied collaborator through which the core streams
// output, checks for cancellation, and reports checkpoint boundaries. It is
// provided once per run and never copied; the core holds at most one open
// unfinished segment at any time.
type Bridge interface {
	// Stopped reports whether the caller has requested cancellation. Polled
	// between every pair of suspension points.
	Stopped() bool

	// OnStep marks the beginning (begin=true) or end (begin=false) of a
	// run phase.
	OnStep(rc *RunContext, begin bool, step StepEvent)

	// OnNext delivers incremental stream progress; rc.StreamText holds the
	// text accumulated so far in the open segment. May be called from
	// within a stream-iteration suspension point.
	OnNext(rc *RunContext)

	// OnNextContext finalizes the open segment and returns the run context
	// to use from here on (possibly the same one, mutated).
	OnNextContext(rc *RunContext, seg Segment) *RunContext

	// OnStop acknowledges a detected stop request. The current segment is
	// always finalized before OnStop is called.
	OnStop(rc *RunContext)
}

// NopBridge is a Bridge that never stops the run and discards all output.
// Useful for tests and fire-and-forget runs.
type NopBridge struct{}

func (NopBridge) Stopped() bool                                  { return false }
func (NopBridge) OnStep(*RunContext, bool, StepEvent)            {}
func (NopBridge) OnNext(*RunContext)                             {}
func (NopBridge) OnNextContext(rc *RunContext, _ Segment) *RunContext { return rc }
func (NopBridge) OnStop(*RunContext)                             {}

// BridgeEventKind identifies the type of ChannelBridge event.
type BridgeEventKind string

const (
	BridgeStepBegin  BridgeEventKind = "step_begin"
	BridgeStepEnd    BridgeEventKind = "step_end"
	BridgeDelta      BridgeEventKind = "delta"
	BridgeCheckpoint BridgeEventKind = "checkpoint"
	BridgeStopAck    BridgeEventKind = "stop_ack"
)

// BridgeEvent is a typed event delivered to the host application by a
// ChannelBridge.
type BridgeEvent struct {
	Kind      BridgeEventKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id"`
	AgentName string          `json:"agent_name,omitempty"`
	Step      *StepEvent      `json:"step,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	Segment   *Segment        `json:"segment,omitempty"`
}

// ChannelBridge is a ready-made Bridge that delivers events over a buffered
// channel and records finalized segments. Stop requests are made with Stop.
type ChannelBridge struct {
	ch          chan BridgeEvent
	mu          sync.Mutex
	stopped     bool
	closed      bool
	checkpoints []Segment
	streamedLen map[string]int // rc.ID -> length of StreamText already delivered
}

// NewChannelBridge creates a ChannelBridge with the given buffer size.
func NewChannelBridge(bufferSize int) *ChannelBridge {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelBridge{
		ch:          make(chan BridgeEvent, bufferSize),
		streamedLen: make(map[string]int),
	}
}

// Events returns the read-only event channel.
func (b *ChannelBridge) Events() <-chan BridgeEvent {
	return b.ch
}

// Stop requests cooperative cancellation of the run.
func (b *ChannelBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

// Stopped reports whether Stop has been called.
func (b *ChannelBridge) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Checkpoints returns a copy of all finalized segments so far.
func (b *ChannelBridge) Checkpoints() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Segment, len(b.checkpoints))
	copy(out, b.checkpoints)
	return out
}

// Close closes the event channel. Safe to call multiple times.
func (b *ChannelBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

func (b *ChannelBridge) emit(ev BridgeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ev.Timestamp = time.Now()
	select {
	case b.ch <- ev:
	default:
		// Channel full; drop rather than block the run loop.
	}
}

func (b *ChannelBridge) OnStep(rc *RunContext, begin bool, step StepEvent) {
	kind := BridgeStepEnd
	if begin {
		kind = BridgeStepBegin
	}
	b.emit(BridgeEvent{Kind: kind, RunID: rc.ID, AgentName: rc.AgentName, Step: &step})
}

func (b *ChannelBridge) OnNext(rc *RunContext) {
	b.mu.Lock()
	seen := b.streamedLen[rc.ID]
	delta := ""
	if len(rc.StreamText) > seen {
		delta = rc.StreamText[seen:]
		b.streamedLen[rc.ID] = len(rc.StreamText)
	}
	b.mu.Unlock()
	if delta == "" {
		return
	}
	b.emit(BridgeEvent{Kind: BridgeDelta, RunID: rc.ID, AgentName: rc.AgentName, Delta: delta})
}

func (b *ChannelBridge) OnNextContext(rc *RunContext, seg Segment) *RunContext {
	b.mu.Lock()
	b.checkpoints = append(b.checkpoints, seg)
	delete(b.streamedLen, rc.ID)
	b.mu.Unlock()
	b.emit(BridgeEvent{Kind: BridgeCheckpoint, RunID: rc.ID, AgentName: rc.AgentName, Segment: &seg})
	return rc
}

func (b *ChannelBridge) OnStop(rc *RunContext) {
	b.emit(BridgeEvent{Kind: BridgeStopAck, RunID: rc.ID, AgentName: rc.AgentName})
}
