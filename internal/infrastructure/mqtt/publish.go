package mqtt

import (
	"context"
	"fmt"
	"strings"
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker's
// acknowledgement at the given QoS. State topics are published retained;
// events never are. Topics containing wildcards are rejected.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "" || strings.ContainsAny(topic, "+#"):
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %s: payload of %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := await(context.Background(), c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
