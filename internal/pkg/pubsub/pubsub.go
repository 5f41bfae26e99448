package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ctx context.Context
var client *pubsub.Client

func InitPubSub() {
	projectID := viper.GetString("GOOGLE_PROJECT_ID")
	if projectID == "" {
		log.Fatal().Msg("Pub sub missing projectID to initialize")
	}
	log.Info().Msg(fmt.Sprintf("Init pubsub with projectID: %s", projectID))
	ctx = context.Background()
	var err error
	client, err = pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pub sub connection")
	}
	log.Info().Msg("Successful pubsub init")
}

func Subscribe(subscriptionHandler SubscriptionHandler) {
	sub := client.Subscription(subscriptionHandler.SubscriptionId)
	err := sub.Receive(ctx, subscriptionHandler.Handler)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Subscriber error for sub id %s", subscriptionHandler.SubscriptionId))
	}
}

func Publish(message Publishable) {
	t := getTopic(message.GetEventTopicName())
	if t == nil {
		return
	}
	defer t.Stop()

	result := t.Publish(ctx, &pubsub.Message{Data: encodeMessage(message)})

	_, err := result.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Failed to publish message for %s", message.GetEventTopicName()))
	}
}

func CloseClient() {
	if client != nil {
		client.Close()
	}
}

func getTopic(topicName string) *pubsub.Topic {
	t := client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Cant check topic %s", topicName))
		return nil
	}
	if exists {
		return t
	}

	log.Info().Msg(fmt.Sprintf("Topic %s does not exist. Creating new", topicName))
	nt, err := client.CreateTopic(ctx, topicName)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Cant create topic %s", topicName))
		return nil
	}
	return nt
}

func encodeMessage(message any) []byte {
	switch m := message.(type) {
	case string:
		return []byte(m)
	default:
		return utils.JsonEncode(m)
	}
}
