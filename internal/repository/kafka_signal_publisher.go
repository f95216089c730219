package repository

import (
	"context"
	"fmt"

	"ContagionRadar/internal/domain/models"
	domrepo "ContagionRadar/internal/domain/repository"
)

// MessagePublisher is the subset of pkg/kafka.Producer used for signals.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaSignalPublisher forwards engine output to Kafka. Contagion signals are
// keyed by origin asset so one origin stays on one partition; rotations are
// keyed by the sector sentiment left.
type KafkaSignalPublisher struct {
	producer       MessagePublisher
	signalsTopic   string
	rotationsTopic string
}

var _ domrepo.SignalSink = (*KafkaSignalPublisher)(nil)

func NewKafkaSignalPublisher(p MessagePublisher, signalsTopic, rotationsTopic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: p, signalsTopic: signalsTopic, rotationsTopic: rotationsTopic}
}

func (k *KafkaSignalPublisher) Name() string { return "kafka" }

func (k *KafkaSignalPublisher) PublishContagion(ctx context.Context, sig models.ContagionSignal) error {
	if err := k.producer.Publish(ctx, k.signalsTopic, []byte(sig.Event.OriginAsset), sig); err != nil {
		return fmt.Errorf("publish contagion %s: %w", sig.Event.ID, err)
	}
	return nil
}

func (k *KafkaSignalPublisher) PublishRotation(ctx context.Context, rot models.SectorRotation) error {
	if err := k.producer.Publish(ctx, k.rotationsTopic, []byte(rot.FromSector), rot); err != nil {
		return fmt.Errorf("publish rotation %s: %w", rot.ID, err)
	}
	return nil
}
