package kq

import (
	"context"
	"sync"
)

// TimelineCenter fans reload requests out to every subscribed widget.
// Requests coalesce: a subscriber that has not yet consumed a pending
// reload does not queue a second one.
type TimelineCenter struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

func NewTimelineCenter() *TimelineCenter {
	return &TimelineCenter{subs: make(map[int]chan struct{})}
}

// Subscribe returns a channel that receives reload requests, and a cancel
// function that unsubscribes and closes it.
func (c *TimelineCenter) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan struct{}, 1)
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// ReloadAllTimelines asks every subscriber to rebuild its timeline.
func (c *TimelineCenter) ReloadAllTimelines() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (c *TimelineCenter) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Forward turns change notifications for key into reload requests until ctx
// is done or the notifier stops.
func (c *TimelineCenter) Forward(ctx context.Context, notifier ChangeNotifier, key string) error {
	changes, err := notifier.Watch(ctx, key)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			c.ReloadAllTimelines()
		}
	}
}
