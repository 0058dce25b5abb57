package pubsub

import (
	"context"
	"fmt"
	"sync"

	"app/internal/config"

	"cloud.google.com/go/pubsub"
)

// Publisher publishes a payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubPublisher publishes over Google Pub/Sub. Topic handles are cached per
// name: each handle owns a batching goroutine pool, so creating one per
// publish would leak them.
type PubSubPublisher struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPublisher creates a PubSubPublisher for the GCP project in config.
func NewPublisher(ctx context.Context, cfg *config.Config) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating Pub/Sub client for project %s: %w", cfg.GCPProjectID, err)
	}
	return &PubSubPublisher{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends the payload to the given topic and waits for the server ack.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing message to topic %s: %w", topic, err)
	}
	return id, nil
}

// Close flushes pending messages on every cached topic and releases the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
