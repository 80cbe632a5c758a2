package service

import (
	"context"

	"github.com/Miasufee/connect-sub000/pkg/kafka"
)

// MessageProducer is the subset of *kafka.Producer the publishers need
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}
