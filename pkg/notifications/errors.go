package notifications

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the dispatch queue is full.
	ErrQueueFull = errors.New("notification queue full")

	// ErrServiceStopped is returned by Enqueue after Stop.
	ErrServiceStopped = errors.New("notification service stopped")

	// ErrInvalidRequest is returned for requests without recipients or channel.
	ErrInvalidRequest = errors.New("invalid notification request")

	errWebhookCooldown   = errors.New("notification is within cooldown period")
	errWebhookStatus     = errors.New("webhook returned non-2xx status")
	errInvalidJSON       = errors.New("invalid JSON generated")
	errUnknownPreset     = errors.New("unknown webhook preset")
	errTemplateParse     = errors.New("template parsing failed")
	errTemplateExecution = errors.New("template execution failed")
	errMQTTTimeout       = errors.New("mqtt publish timed out")
	errKafkaConfig       = errors.New("kafka sender needs brokers and a topic")
)
