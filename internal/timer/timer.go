// Package timer implements the per-question elapsed-time counter.
package timer

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPreRoll = 3 * time.Second
	DefaultTick    = time.Second
)

// Tick is reported after every counted second.
type Tick struct {
	Generation uint64
	Question   int
	Elapsed    int
}

// Timer counts whole seconds for the active question after a pre-roll.
// Every Activate or Stop starts a new generation; callbacks scheduled under an
// older generation are dropped.
type Timer struct {
	preRoll time.Duration
	tick    time.Duration
	onTick  func(Tick)

	mu       sync.Mutex
	gen      uint64
	question int
	elapsed  int
	counting bool
	preTimer *time.Timer
	done     chan struct{}
	wg       sync.WaitGroup
}

// New builds a timer. Non-positive durations fall back to the defaults.
func New(preRoll, tick time.Duration, onTick func(Tick)) *Timer {
	if preRoll <= 0 {
		preRoll = DefaultPreRoll
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Timer{preRoll: preRoll, tick: tick, onTick: onTick, question: -1}
}

// Activate binds the timer to question, zeroes elapsed time and schedules
// counting after the pre-roll. It returns the new generation.
func (t *Timer) Activate(question int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	t.gen++
	t.question = question
	t.elapsed = 0
	gen := t.gen
	t.preTimer = time.AfterFunc(t.preRoll, func() { t.begin(gen) })
	return gen
}

// Stop freezes elapsed time at its current value.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	t.gen++
}

// Close stops the timer and waits for its ticker goroutine to exit.
func (t *Timer) Close() {
	t.Stop()
	t.wg.Wait()
}

// Elapsed returns counted seconds; zero during the pre-roll.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Counting reports whether the pre-roll has ended and seconds are counting.
func (t *Timer) Counting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counting
}

// Generation returns the current generation token.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Timer) begin(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}

	t.preTimer = nil
	t.counting = true
	done := make(chan struct{})
	t.done = done
	ticker := time.NewTicker(t.tick)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.advance(gen)
			}
		}
	}()
}

func (t *Timer) advance(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.elapsed++
	tick := Tick{Generation: gen, Question: t.question, Elapsed: t.elapsed}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(tick)
	}
}

func (t *Timer) cancelLocked() {
	if t.preTimer != nil {
		t.preTimer.Stop()
		t.preTimer = nil
	}
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.counting = false
}

// Format renders seconds as m:ss with unpadded minutes.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
