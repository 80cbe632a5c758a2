package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/kafka"
	"github.com/google/uuid"
)

// AuthEventPublisher defines the interface for publishing auth events
type AuthEventPublisher interface {
	// Publish publishes an auth event for userID
	Publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) error
	// Close closes the event publisher
	Close() error
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// KafkaAuthEventPublisher implements AuthEventPublisher using Kafka
type KafkaAuthEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// NewKafkaAuthEventPublisher creates a new Kafka event publisher
func NewKafkaAuthEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaAuthEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "auth-service-events"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return newKafkaAuthEventPublisher(producer, cfg.Topic, cfg.ServiceName), nil
}

func newKafkaAuthEventPublisher(producer MessageProducer, topic, serviceName string) *KafkaAuthEventPublisher {
	if topic == "" {
		topic = "auth-events"
	}
	if serviceName == "" {
		serviceName = "auth-service"
	}
	return &KafkaAuthEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}
}

// Publish publishes an auth event to Kafka
func (p *KafkaAuthEventPublisher) Publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) error {
	eventID := uuid.New().String()
	event := domain.NewAuthEvent(eventType, userID, eventID, data)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: map[string]string{
			"event_type":   string(eventType),
			"event_id":     eventID,
			"source":       p.serviceName,
			"content_type": "application/json",
		},
		Timestamp: event.OccurredAt,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// Close closes the event publisher
func (p *KafkaAuthEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// NoOpAuthEventPublisher is a no-op implementation of AuthEventPublisher
type NoOpAuthEventPublisher struct{}

// NewNoOpAuthEventPublisher creates a new no-op event publisher
func NewNoOpAuthEventPublisher() *NoOpAuthEventPublisher {
	return &NoOpAuthEventPublisher{}
}

// Publish is a no-op
func (p *NoOpAuthEventPublisher) Publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) error {
	return nil
}

// Close is a no-op
func (p *NoOpAuthEventPublisher) Close() error {
	return nil
}
