package mqtt

import (
	"context"
	"fmt"
	"slices"
)

// Subscribe routes messages matching filter to handler. Wildcards are
// allowed. The handler runs on a paho goroutine. The subscription is
// remembered and restored after a reconnect; it is forgotten again if the
// broker rejects it.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	switch {
	case filter == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, filter)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[filter] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(context.Background(), c.paho.Subscribe(filter, qos, c.wrapHandler(handler)), defaultPublishTimeout); err != nil {
		c.forget(filter)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Unsubscribe drops a subscription. Messages already in flight may still
// reach the old handler.
func (c *Client) Unsubscribe(filter string) error {
	switch {
	case filter == "":
		return ErrInvalidTopic
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.forget(filter)
	if err := await(context.Background(), c.paho.Unsubscribe(filter), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, filter, err)
	}
	return nil
}

func (c *Client) forget(filter string) {
	c.mu.Lock()
	delete(c.routes, filter)
	c.mu.Unlock()
}

// Subscriptions returns the remembered filters in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	filters := make([]string, 0, len(c.routes))
	for f := range c.routes {
		filters = append(filters, f)
	}
	c.mu.RUnlock()

	slices.Sort(filters)
	return filters
}

// HasSubscription reports whether filter is remembered.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.routes[filter]
	return ok
}
