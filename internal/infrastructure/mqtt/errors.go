package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned by Connect when the broker does not
	// accept the session.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the session is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrInvalidTopic is returned for an empty topic, a publish topic with
	// wildcards, or a command topic outside {prefix}/command/{zone}[/{group}].
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
)
