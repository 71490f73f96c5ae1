package services

import (
	"context"
	"sync"
	"time"
)

// Timer это отменяемая отложенная или периодическая задача.
type Timer interface {
	Stop() bool
}

// Scheduler abstracts wall-clock time so progression timers can be driven by tests.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	// Every runs f every d until the returned timer is stopped. Runs never overlap.
	Every(d time.Duration, f func()) Timer
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

type realScheduler struct{}

func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realScheduler) Every(d time.Duration, f func()) Timer {
	t := &tickerTimer{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				f()
			}
		}
	}()
	return t
}

func (realScheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

type tickerTimer struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
