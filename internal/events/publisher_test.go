package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFulfillmentEvent_Topic(t *testing.T) {
	tests := []struct {
		eventType string
		topic     string
	}{
		{"completed", TopicFulfillmentCompleted},
		{"degraded", TopicFulfillmentDegraded},
		{"failed", TopicFulfillmentFailed},
		{"aborted", TopicFulfillmentFailed},
		{"", TopicFulfillmentCompleted},
	}
	for _, tt := range tests {
		e := &FulfillmentEvent{EventType: tt.eventType}
		assert.Equal(t, tt.topic, e.Topic(), "event type %q", tt.eventType)
	}
}

func TestNoopPublisher(t *testing.T) {
	p := NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), &FulfillmentEvent{EventType: "completed"}))
	p.Close()
}
