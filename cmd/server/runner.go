package main

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"gridlegion.ai/internal/sim/behavior"
)

// runner owns the engine. Every read or write of engine state happens on its goroutine,
// either from the ticker or through Do.
type runner struct {
	e   *behavior.Engine
	log *log.Logger

	hz      float64
	speed   float64
	maxTime float64

	reqs chan func(*behavior.Engine)

	stepNanos atomic.Int64
	ticks     atomic.Uint64
}

func newRunner(e *behavior.Engine, logger *log.Logger, hz, speed, maxTime float64) *runner {
	if hz <= 0 {
		hz = 20
	}
	if speed <= 0 {
		speed = 1
	}
	return &runner{
		e:       e,
		log:     logger,
		hz:      hz,
		speed:   speed,
		maxTime: maxTime,
		reqs:    make(chan func(*behavior.Engine), 64),
	}
}

// Run advances the engine in real time until ctx is done or maxTime is reached.
func (r *runner) Run(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / r.hz)
	t := time.NewTicker(period)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.reqs:
			fn(r.e)
		case now := <-t.C:
			dt := now.Sub(last).Seconds() * r.speed
			last = now
			start := time.Now()
			r.e.Advance(dt)
			r.stepNanos.Store(int64(time.Since(start)))
			r.ticks.Add(1)
			if r.maxTime > 0 && r.e.Now() >= r.maxTime {
				r.log.Printf("reached max time %.1f after %d passes", r.e.Now(), r.e.Passes())
				return nil
			}
		}
	}
}

// Do runs fn on the engine goroutine and waits for it.
func (r *runner) Do(ctx context.Context, fn func(*behavior.Engine)) error {
	done := make(chan struct{})
	wrapped := func(e *behavior.Engine) {
		fn(e)
		close(done)
	}
	select {
	case r.reqs <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runner) StepMS() float64 { return float64(r.stepNanos.Load()) / float64(time.Millisecond) }
