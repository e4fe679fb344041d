// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "lantern/internal/log"
	"lantern/internal/metrics"
	"lantern/internal/protocol"
	"lantern/internal/transport"

	"github.com/google/uuid"
)

// EmergencyOff turns the light off without going through the queue, for use
// when the host is about to kill the process. It waits at most half the
// emergency budget for an in-flight command, then writes the encoded
// turn-off within half of what is left. If that fails it writes the raw off
// frame to each writable characteristic until one accepts it. Device calls
// that outlive their share are abandoned, so the whole call returns within
// the budget. Afterwards the queue drops every Send.
func (q *Queue) EmergencyOff(ctx context.Context) error {
	budget := q.opts.EmergencyBudget
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	q.halted.Store(true)
	start := time.Now()
	defer applog.Since("emergency off", start)

	wait := time.NewTimer(budget / 2)
	defer wait.Stop()
	select {
	case q.io <- struct{}{}:
		defer func() { <-q.io }()
	case <-wait.C:
		applog.Warnf("Dispatch: Emergency off proceeding without waiting for in-flight command")
	case <-ctx.Done():
	}

	sess := q.currentSession()
	if sess == nil {
		metrics.EmergencyOffs.WithLabelValues("none").Inc()
		return ErrNotConnected
	}

	payload, err := protocol.Encode(protocol.TurnOff())
	if err == nil {
		deadline, _ := ctx.Deadline()
		sctx, scancel := context.WithTimeout(ctx, time.Until(deadline)/2)
		err = writeWithin(sctx, sess, protocol.Characteristic, payload)
		scancel()
	}
	if err == nil {
		applog.Infof("Dispatch: Emergency off sent to %s", sess.ID())
		metrics.EmergencyOffs.WithLabelValues("structured").Inc()
		return nil
	}
	applog.Warnf("Dispatch: Emergency turn off failed, trying raw frame: %v", err)

	errs := []error{err}
	chars, err := within(ctx, func() ([]uuid.UUID, error) {
		return sess.Characteristics(ctx)
	})
	if err != nil {
		errs = append(errs, err)
	}
	for _, char := range chars {
		werr := writeWithin(ctx, sess, char, protocol.RawOff)
		if werr == nil {
			applog.Infof("Dispatch: Emergency raw off accepted by %s", char)
			metrics.EmergencyOffs.WithLabelValues("raw").Inc()
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", char, werr))
		if ctx.Err() != nil {
			break
		}
	}

	metrics.EmergencyOffs.WithLabelValues("failed").Inc()
	return fmt.Errorf("emergency off: %w", errors.Join(errs...))
}

// within runs fn on its own goroutine and returns ctx.Err() if ctx is done
// first. An abandoned fn keeps running until the transport returns.
func within[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func writeWithin(ctx context.Context, sess transport.Session, char uuid.UUID, payload []byte) error {
	_, err := within(ctx, func() (struct{}, error) {
		return struct{}{}, sess.Write(ctx, char, payload)
	})
	return err
}

// Halted reports whether EmergencyOff has run.
func (q *Queue) Halted() bool {
	return q.halted.Load()
}
