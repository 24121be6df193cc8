// Package ratelimit enforces the daily send quota.
//
// The limiter keeps no counter of its own. Every Reserve reads the number of
// sends already made today from the ledger, so a restart in the middle of a
// day neither forgets nor double counts anything.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/entrhq/inreach/pkg/clock"
)

// DailyWindow is the cron expression for the start of each quota window.
const DailyWindow = "0 0 * * *"

// SentCounter reports how many messages were sent during the current local day.
type SentCounter interface {
	CountSentToday(ctx context.Context) (int, error)
}

// Quota is a snapshot of the daily quota.
type Quota struct {
	Date  time.Time
	Sent  int
	Limit int // <= 0 means unlimited
}

// Remaining returns the sends left today, or -1 when unlimited.
func (q Quota) Remaining() int {
	if q.Limit <= 0 {
		return -1
	}
	return max(0, q.Limit-q.Sent)
}

// Limiter gates batches against the daily quota.
type Limiter struct {
	counter  SentCounter
	limit    int
	clock    clock.Clock
	schedule cron.Schedule
}

// New creates a Limiter. limit <= 0 disables the quota.
func New(counter SentCounter, limit int, clk clock.Clock) (*Limiter, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(DailyWindow)
	if err != nil {
		return nil, fmt.Errorf("parse daily window: %w", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{
		counter:  counter,
		limit:    limit,
		clock:    clk,
		schedule: schedule,
	}, nil
}

// Status reads the current quota from the ledger.
func (l *Limiter) Status(ctx context.Context) (Quota, error) {
	now := l.clock.Now()
	sent, err := l.counter.CountSentToday(ctx)
	if err != nil {
		return Quota{}, fmt.Errorf("count sent today: %w", err)
	}
	return Quota{
		Date:  time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		Sent:  sent,
		Limit: l.limit,
	}, nil
}

// Reserve returns how many of n sends are permitted right now:
// min(n, limit - sentToday), never negative.
func (l *Limiter) Reserve(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if l.limit <= 0 {
		return n, nil
	}

	quota, err := l.Status(ctx)
	if err != nil {
		return 0, err
	}
	return min(n, quota.Remaining()), nil
}

// NextWindow returns the start of the next quota window after now.
func (l *Limiter) NextWindow() time.Time {
	return l.schedule.Next(l.clock.Now())
}

// WaitForNextWindow sleeps until the next local midnight and returns it.
// It returns early with ctx.Err() when ctx is cancelled.
func (l *Limiter) WaitForNextWindow(ctx context.Context) (time.Time, error) {
	next := l.NextWindow()
	if err := l.clock.Sleep(ctx, next.Sub(l.clock.Now())); err != nil {
		return time.Time{}, err
	}
	return next, nil
}
