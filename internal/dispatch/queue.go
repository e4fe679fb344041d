// SPDX-License-Identifier: MIT

// Package dispatch serializes every operation against the light. A single
// consumer goroutine owns the session and the connection state; producers
// only enqueue commands and watch events.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lantern/internal/events"
	applog "lantern/internal/log"
	"lantern/internal/metrics"
	"lantern/internal/protocol"
	"lantern/internal/transport"
)

// ErrNotConnected is returned by EmergencyOff when no session is open.
var ErrNotConnected = errors.New("not connected")

// Options tune a Queue. Zero values take the defaults below.
type Options struct {
	ConnectTimeout  time.Duration
	WriteTimeout    time.Duration
	EmergencyBudget time.Duration
}

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultWriteTimeout    = 2 * time.Second
	defaultEmergencyBudget = 300 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.EmergencyBudget <= 0 {
		o.EmergencyBudget = defaultEmergencyBudget
	}
	return o
}

// item is a queued command or, when barrier is non-nil, a Flush marker.
type item struct {
	cmd     Command
	barrier chan struct{}
}

// Queue is an unbounded FIFO executor with exactly one consumer.
type Queue struct {
	transport transport.Transport
	sink      events.Sink
	opts      Options

	// Pending work. notify has capacity 1 and wakes the consumer.
	pendingMu sync.Mutex
	pending   []item
	notify    chan struct{}

	// io is held for the duration of every device operation so the
	// emergency path can wait for the in-flight one.
	io chan struct{}

	sessionMu sync.Mutex
	session   transport.Session

	stateMu sync.RWMutex
	state   ConnectionState

	halted atomic.Bool

	// Lifecycle
	mu       sync.Mutex
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewQueue creates a Queue. sink may be nil.
func NewQueue(t transport.Transport, sink events.Sink, opts Options) *Queue {
	if sink == nil {
		sink = events.Discard
	}
	return &Queue{
		transport: t,
		sink:      sink,
		opts:      opts.withDefaults(),
		notify:    make(chan struct{}, 1),
		io:        make(chan struct{}, 1),
	}
}

// Enqueue appends cmd. It never blocks and is safe from any goroutine.
func (q *Queue) Enqueue(cmd Command) {
	q.push(item{cmd: cmd})
}

func (q *Queue) push(it item) {
	q.pendingMu.Lock()
	q.pending = append(q.pending, it)
	depth := len(q.pending)
	q.pendingMu.Unlock()
	metrics.QueueDepth.Set(float64(depth))

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (item, bool) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if len(q.pending) == 0 {
		return item{}, false
	}
	it := q.pending[0]
	q.pending[0] = item{}
	q.pending = q.pending[1:]
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return it, true
}

// Len returns the number of commands waiting.
func (q *Queue) Len() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return len(q.pending)
}

// State returns the current connection state.
func (q *Queue) State() ConnectionState {
	q.stateMu.RLock()
	defer q.stateMu.RUnlock()
	return q.state
}

func (q *Queue) setState(s ConnectionState) {
	q.stateMu.Lock()
	prev := q.state
	q.state = s
	q.stateMu.Unlock()
	if prev.Kind != s.Kind {
		applog.Debugf("Dispatch: State %s -> %s", prev, s)
	}
	if s.IsConnected() {
		metrics.Connected.Set(1)
	} else {
		metrics.Connected.Set(0)
	}
}

// Start launches the consumer goroutine. Subsequent calls while running are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		applog.Warnf("Dispatch: Start called but already running.")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.stopOnce = sync.Once{}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.Run(runCtx)
	}()
}

// Stop interrupts the consumer after its current command and waits for it to
// exit. Pending commands stay queued. Safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.cancel == nil {
		q.mu.Unlock()
		return
	}
	q.stopOnce.Do(func() {
		q.cancel()
		q.cancel = nil
	})
	q.mu.Unlock()
	q.wg.Wait()
}

// Run consumes commands until ctx is done. Start calls it; tests may call it
// directly on their own goroutine.
func (q *Queue) Run(ctx context.Context) {
	applog.Infof("Dispatch: Consumer started")
	defer applog.Infof("Dispatch: Consumer stopped")
	for {
		it, ok := q.pop()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			q.requeueFront(it)
			return
		}
		if it.barrier != nil {
			close(it.barrier)
			continue
		}
		q.execute(ctx, it.cmd)
	}
}

func (q *Queue) requeueFront(it item) {
	q.pendingMu.Lock()
	q.pending = append([]item{it}, q.pending...)
	q.pendingMu.Unlock()
}

// Flush blocks until every command enqueued before it has completed.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	q.push(item{barrier: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown disconnects, drains, and stops the consumer.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Enqueue(Disconnect())
	err := q.Flush(ctx)
	q.Stop()
	return err
}

func (q *Queue) execute(ctx context.Context, cmd Command) {
	q.io <- struct{}{}
	defer func() { <-q.io }()

	start := time.Now()
	var outcome string
	switch cmd.Kind {
	case KindConnect:
		outcome = q.connect(ctx, cmd)
	case KindDisconnect:
		outcome = q.disconnect(ctx)
	case KindSend:
		outcome = q.send(ctx, cmd.Op)
	default:
		applog.Errorf("Dispatch: Ignoring unknown command %s", cmd)
		outcome = metrics.OutcomeError
	}
	metrics.CommandsExecuted.WithLabelValues(cmd.Kind.String(), outcome).Inc()
	metrics.CommandDuration.WithLabelValues(cmd.Kind.String()).Observe(time.Since(start).Seconds())
}

func (q *Queue) currentSession() transport.Session {
	q.sessionMu.Lock()
	defer q.sessionMu.Unlock()
	return q.session
}

func (q *Queue) setSession(s transport.Session) {
	q.sessionMu.Lock()
	q.session = s
	q.sessionMu.Unlock()
}

func (q *Queue) connect(ctx context.Context, cmd Command) string {
	if q.currentSession() != nil {
		applog.Infof("Dispatch: Replacing session before connecting to %s", cmd.Descriptor)
		q.closeSession(ctx)
	}

	q.setState(ConnectionState{Kind: Connecting})
	cctx, cancel := context.WithTimeout(ctx, q.opts.ConnectTimeout)
	defer cancel()

	sess, err := q.transport.Connect(cctx, cmd.Descriptor)
	if err != nil {
		err = transport.Wrap("connect", cmd.Descriptor.ID(), err)
		applog.Errorf("Dispatch: Connection failed: %v", err)
		q.setState(ConnectionState{Kind: Disconnected})
		q.sink.Notify(events.NewError(events.SourceTransport, err))
		return metrics.OutcomeError
	}

	q.setSession(sess)
	q.setState(ConnectionState{Kind: Connected, DeviceID: sess.ID()})
	applog.Infof("Dispatch: Connected to %s", sess.ID())
	q.sink.Notify(events.NewConnected(sess.ID()))
	if cmd.OnSuccess != nil {
		cmd.OnSuccess()
	}
	return metrics.OutcomeOK
}

func (q *Queue) disconnect(ctx context.Context) string {
	if q.currentSession() == nil {
		applog.Debugf("Dispatch: Disconnect while disconnected, nothing to do")
		return metrics.OutcomeNoop
	}
	if q.closeSession(ctx) != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeOK
}

// closeSession closes the open session and always ends Disconnected with a
// disconnected event. A close error is reported first.
func (q *Queue) closeSession(ctx context.Context) error {
	sess := q.currentSession()
	dctx, cancel := context.WithTimeout(ctx, q.opts.WriteTimeout)
	defer cancel()

	err := sess.Disconnect(dctx)
	q.setSession(nil)
	if err != nil {
		err = transport.Wrap("disconnect", sess.ID(), err)
		applog.Errorf("Dispatch: Disconnect error: %v", err)
		q.sink.Notify(events.NewError(events.SourceTransport, err))
	}
	q.setState(ConnectionState{Kind: Disconnected})
	applog.Infof("Dispatch: Disconnected from %s", sess.ID())
	q.sink.Notify(events.NewDisconnected())
	return err
}

func (q *Queue) send(ctx context.Context, op protocol.Operation) string {
	sess := q.currentSession()
	if sess == nil || q.halted.Load() {
		applog.Debugf("Dispatch: Dropping %s, not connected", op)
		return metrics.OutcomeDropped
	}

	payload, err := protocol.Encode(op)
	if err != nil {
		applog.Errorf("Dispatch: Cannot encode %s: %v", op, err)
		q.sink.Notify(events.NewError(events.SourceProtocol, err))
		return metrics.OutcomeError
	}

	wctx, cancel := context.WithTimeout(ctx, q.opts.WriteTimeout)
	defer cancel()
	if err := sess.Write(wctx, protocol.Characteristic, payload); err != nil {
		err = transport.Wrap("write", sess.ID(), err)
		applog.Errorf("Dispatch: Send error: %v", err)
		q.setState(ConnectionState{Kind: Faulted, DeviceID: sess.ID(), Err: err})
		q.sink.Notify(events.NewError(events.SourceTransport, err))
		return metrics.OutcomeError
	}

	if q.State().Kind != Connected {
		q.setState(ConnectionState{Kind: Connected, DeviceID: sess.ID()})
	}
	return metrics.OutcomeOK
}
