// Package progress pairs a remote call with a cosmetic progress signal and a
// minimum display time.
package progress

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Profile tunes one call site.
type Profile struct {
	Name     string
	Step     int
	Cap      int
	Interval time.Duration
	Floor    time.Duration
	Hold     time.Duration
}

var (
	ResumeQuestions = Profile{Name: "resume_questions", Step: 10, Cap: 90, Interval: 200 * time.Millisecond, Floor: 1500 * time.Millisecond, Hold: 300 * time.Millisecond}
	InfoQuestions   = Profile{Name: "info_questions", Step: 8, Cap: 90, Interval: 250 * time.Millisecond, Floor: 2000 * time.Millisecond, Hold: 300 * time.Millisecond}
	Evaluation      = Profile{Name: "evaluation", Step: 10, Cap: 90, Interval: 300 * time.Millisecond, Floor: 2500 * time.Millisecond, Hold: 500 * time.Millisecond}
)

// Complete is the value reported once the operation has settled.
const Complete = 100

// reporter serializes progress values and ignores cosmetic values once the
// operation has completed.
type reporter struct {
	mu   sync.Mutex
	fn   func(int)
	done bool
}

func (r *reporter) cosmetic(v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.done {
		r.fn(v)
	}
}

func (r *reporter) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.fn(Complete)
}

func (r *reporter) abandon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}

// Wait runs op alongside a floor timer and a cosmetic ticker. It returns once
// op and the floor have both finished and the completed state has been held,
// or as soon as op fails.
func Wait[T any](ctx context.Context, p Profile, report func(int), op func(context.Context) (T, error)) (T, error) {
	if report == nil {
		report = func(int) {}
	}
	if p.Cap <= 0 || p.Cap >= Complete {
		p.Cap = 90
	}
	rep := &reporter{fn: report}
	rep.cosmetic(0)

	var result T
	settled := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(settled)
		v, err := op(gctx)
		if err != nil {
			rep.abandon()
			return err
		}
		result = v
		rep.complete()
		return nil
	})

	g.Go(func() error {
		floor := time.NewTimer(p.Floor)
		defer floor.Stop()
		select {
		case <-floor.C:
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		if p.Interval <= 0 || p.Step <= 0 {
			<-settled
			return nil
		}
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		value := 0
		for {
			select {
			case <-settled:
				return nil
			case <-ticker.C:
				if value < p.Cap {
					value = min(value+p.Step, p.Cap)
					rep.cosmetic(value)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		var zero T
		return zero, err
	}

	if p.Hold > 0 {
		hold := time.NewTimer(p.Hold)
		defer hold.Stop()
		select {
		case <-hold.C:
		case <-ctx.Done():
		}
	}
	return result, nil
}
