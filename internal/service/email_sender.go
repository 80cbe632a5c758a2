package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/pkg/kafka"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmailMessage is what the mailer needs to deliver one email
type EmailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// EmailSender hands messages to the delivery collaborator
type EmailSender interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// KafkaEmailSender queues emails on a topic consumed by the mailer
type KafkaEmailSender struct {
	producer MessageProducer
	topic    string
	retry    *retry.Config
}

// NewKafkaEmailSender creates a KafkaEmailSender
func NewKafkaEmailSender(producer MessageProducer, topic string, retryCfg *retry.Config) *KafkaEmailSender {
	if topic == "" {
		topic = "email-outbound"
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &KafkaEmailSender{producer: producer, topic: topic, retry: retryCfg}
}

// Send publishes msg, retrying transient broker errors
func (s *KafkaEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	record := &kafka.Message{
		Topic: s.topic,
		Key:   []byte(msg.To),
		Value: value,
		Headers: map[string]string{
			"message_id":   uuid.New().String(),
			"content_type": "application/json",
		},
		Timestamp: time.Now(),
	}

	result := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		err := s.producer.Produce(ctx, record)
		if kafka.IsPermanent(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if result.Err != nil {
		return fmt.Errorf("failed to queue email after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}

// LogEmailSender only logs. Bodies carry codes and reset links, so they are
// logged only when revealContent is set (local development).
type LogEmailSender struct {
	log           *logger.Logger
	revealContent bool
}

// NewLogEmailSender creates a LogEmailSender
func NewLogEmailSender(log *logger.Logger, revealContent bool) *LogEmailSender {
	if log == nil {
		log = logger.Nop()
	}
	return &LogEmailSender{log: log, revealContent: revealContent}
}

// Send logs msg
func (s *LogEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	fields := []zap.Field{zap.String("to", msg.To), zap.String("subject", msg.Subject)}
	if s.revealContent {
		fields = append(fields, zap.String("text", msg.Text))
	}
	s.log.Info("email not delivered, no mail transport configured", fields...)
	return nil
}
