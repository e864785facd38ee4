package chatws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const DeliveriesChannel = "chat:deliveries"

// Broker fans envelopes out to every hub instance, including the publisher.
type Broker interface {
	Publish(ctx context.Context, envelope *Envelope) error
	Subscribe(ctx context.Context, handler func(*Envelope)) error
}

// LocalBroker delivers envelopes in-process. It serves single-instance
// deployments and tests.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers []func(*Envelope)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(_ context.Context, envelope *Envelope) error {
	b.mu.RLock()
	handlers := append([]func(*Envelope){}, b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(envelope)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, handler func(*Envelope)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return nil
}

// RedisBroker carries envelopes over a Redis pub/sub channel so that a
// message accepted by one instance reaches sockets held by another.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *logrus.Entry
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: DeliveriesChannel,
		log:     logrus.WithField("component", "redis_broker"),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, envelope *Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// Subscribe confirms the subscription and then consumes it in the background
// until ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, handler func(*Envelope)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				var envelope Envelope
				if err := json.Unmarshal([]byte(message.Payload), &envelope); err != nil {
					b.log.WithError(err).Warn("dropping malformed envelope")
					continue
				}
				handler(&envelope)
			}
		}
	}()
	return nil
}
