package notify

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier wraps the in-memory Bus and also publishes every
// notification to a Google Cloud Pub/Sub topic for durable delivery to the
// downstream channels (email, SMS, in-app).
//
// Fan-out strategy:
//   - Pub/Sub: durable, at-least-once delivery to notification consumers
//   - In-memory: immediate push to in-process subscribers
type PubSubNotifier struct {
	*Bus // embedded — Subscribe/Unsubscribe still work

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubNotifier creates a Pub/Sub-backed notifier. It creates the topic
// if it does not exist.
func NewPubSubNotifier(projectID, topicID string) (*PubSubNotifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("Created Pub/Sub topic", "topic_id", topicID)
	}

	// Order per recipient so level changes arrive in sequence.
	topic.EnableMessageOrdering = true

	n := &PubSubNotifier{
		Bus:    NewBus(),
		client: client,
		topic:  topic,
		logger: log.New(log.Writer(), "[PUBSUB] ", log.LstdFlags),
	}
	n.logger.Printf("Connected to Pub/Sub topic: projects/%s/topics/%s", projectID, topicID)
	return n, nil
}

// Dispatch publishes to Pub/Sub and fans out to in-memory subscribers.
func (p *PubSubNotifier) Dispatch(ctx context.Context, n *Notification) error {
	payload, err := n.JSON()
	if err != nil {
		return fmt.Errorf("serialize notification: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        payload,
		OrderingKey: n.RecipientID,
		Attributes: map[string]string{
			"kind":         n.Kind,
			"recipient_id": n.RecipientID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		p.logger.Printf("Pub/Sub publish failed for %s: %v", n.ID, err)
		return fmt.Errorf("publish notification: %w", err)
	}

	return p.Bus.Dispatch(ctx, n)
}

// Close flushes the topic and shuts down the client.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
