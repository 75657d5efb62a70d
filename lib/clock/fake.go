// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when a test calls
// Advance. Safe for concurrent use: the code under test waits on it
// while the test drives it.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	schedule []*alarm
	sequence uint64
	changed  *sync.Cond
}

// alarm is a pending After or Ticker. period is zero for After.
type alarm struct {
	due      time.Time
	order    uint64
	period   time.Duration
	channel  chan time.Time
	canceled bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		fired := make(chan time.Time, 1)
		fired <- c.now
		return fired
	}
	return c.addLocked(d, 0).channel
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker needs a positive interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.addLocked(d, d)
	return &Ticker{C: pending.channel, stopFunc: func() {
		c.mu.Lock()
		pending.canceled = true
		c.mu.Unlock()
	}}
}

func (c *FakeClock) addLocked(delay, period time.Duration) *alarm {
	c.sequence++
	pending := &alarm{
		due:     c.now.Add(delay),
		order:   c.sequence,
		period:  period,
		channel: make(chan time.Time, 1),
	}
	c.schedule = append(c.schedule, pending)
	c.changed.Broadcast()
	return pending
}

// Advance moves time forward by d and delivers every alarm that falls
// due, earliest first; a ticker whose period fits more than once in d
// is offered each of its ticks. Delivery never blocks, so a consumer
// that has not drained its previous tick loses the new one, as with
// time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	until := c.now
	c.mu.Unlock()

	for {
		next := c.popDue(until)
		if next == nil {
			return
		}
		select {
		case next <- until:
		default:
		}
	}
}

// popDue removes the earliest alarm due at or before until and returns
// its channel. Tickers are put back one period later.
func (c *FakeClock) popDue(until time.Time) chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.schedule = slices.DeleteFunc(c.schedule, func(a *alarm) bool { return a.canceled })
	if len(c.schedule) == 0 {
		return nil
	}
	earliest := slices.MinFunc(c.schedule, func(a, b *alarm) int {
		if order := a.due.Compare(b.due); order != 0 {
			return order
		}
		return cmp.Compare(a.order, b.order)
	})
	if earliest.due.After(until) {
		return nil
	}
	if earliest.period > 0 {
		earliest.due = earliest.due.Add(earliest.period)
	} else {
		c.schedule = slices.DeleteFunc(c.schedule, func(a *alarm) bool { return a == earliest })
	}
	return earliest.channel
}

// WaitForTimers blocks until at least n alarms (After calls or
// running tickers) are pending. Tests use it to know the code under
// test has reached its wait before calling Advance.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	pending := 0
	for _, a := range c.schedule {
		if !a.canceled {
			pending++
		}
	}
	return pending
}
