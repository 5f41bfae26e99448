package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub"
)

type SubscriptionHandler struct {
	SubscriptionId string
	Handler        func(ctx context.Context, message *pubsub.Message)
}

// Publishable is an event that knows the topic it belongs to.
type Publishable interface {
	GetEventTopicName() string
}
