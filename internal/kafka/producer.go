package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/creatorlane/billing-service/internal/domain"
	"github.com/creatorlane/billing-service/pkg/logger"
)

const (
	TopicSubscriptionCreated   = "billing.subscription.created"
	TopicSubscriptionActivated = "billing.subscription.activated"
	TopicSubscriptionCancelled = "billing.subscription.cancelled"
	TopicSubscriptionPastDue   = "billing.subscription.past_due"
)

// SubscriptionEvent представляет событие жизненного цикла подписки для Kafka
type SubscriptionEvent struct {
	SubscriptionID  string                    `json:"subscription_id"`
	SubscriberID    string                    `json:"subscriber_id"`
	CreatorID       string                    `json:"creator_id"`
	TierID          string                    `json:"tier_id"`
	Status          domain.SubscriptionStatus `json:"status"`
	TotalAmount     int64                     `json:"total_amount"`
	PlatformFee     int64                     `json:"platform_fee"`
	CreatorEarnings int64                     `json:"creator_earnings"`
	Timestamp       time.Time                 `json:"timestamp"`
}

// SubscriptionProducer интерфейс для отправки событий жизненного цикла подписок
type SubscriptionProducer interface {
	PublishSubscriptionCreated(ctx context.Context, sub *domain.Subscription) error
	PublishSubscriptionActivated(ctx context.Context, sub *domain.Subscription) error
	PublishSubscriptionCancelled(ctx context.Context, sub *domain.Subscription) error
	PublishSubscriptionPastDue(ctx context.Context, sub *domain.Subscription) error
	Close() error
}

type kafkaSubscriptionProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewSyncProducer создает синхронный продюсер sarama с подтверждением
// от всех реплик
func NewSyncProducer(brokers []string, log *logger.Logger) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		log.Errorw("Failed to create Kafka producer", "error", err, "brokers", brokers)
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)
	return producer, nil
}

// NewKafkaSubscriptionProducer создает продюсер событий подписок
func NewKafkaSubscriptionProducer(producer sarama.SyncProducer, log *logger.Logger) SubscriptionProducer {
	return &kafkaSubscriptionProducer{
		producer: producer,
		log:      log,
	}
}

// PublishSubscriptionCreated публикует событие о создании подписки
func (p *kafkaSubscriptionProducer) PublishSubscriptionCreated(ctx context.Context, sub *domain.Subscription) error {
	return p.publishEvent(ctx, TopicSubscriptionCreated, sub)
}

// PublishSubscriptionActivated публикует событие об активации подписки
func (p *kafkaSubscriptionProducer) PublishSubscriptionActivated(ctx context.Context, sub *domain.Subscription) error {
	return p.publishEvent(ctx, TopicSubscriptionActivated, sub)
}

// PublishSubscriptionCancelled публикует событие об отмене подписки
func (p *kafkaSubscriptionProducer) PublishSubscriptionCancelled(ctx context.Context, sub *domain.Subscription) error {
	return p.publishEvent(ctx, TopicSubscriptionCancelled, sub)
}

// PublishSubscriptionPastDue публикует событие о просрочке оплаты
func (p *kafkaSubscriptionProducer) PublishSubscriptionPastDue(ctx context.Context, sub *domain.Subscription) error {
	return p.publishEvent(ctx, TopicSubscriptionPastDue, sub)
}

// publishEvent публикует событие подписки в Kafka. Ключом служит ID
// подписки, чтобы события одной подписки попадали в одну партицию
// и сохраняли порядок.
func (p *kafkaSubscriptionProducer) publishEvent(ctx context.Context, topic string, sub *domain.Subscription) error {
	event := SubscriptionEvent{
		SubscriptionID:  sub.ID.String(),
		SubscriberID:    sub.SubscriberID.String(),
		CreatorID:       sub.CreatorID.String(),
		TierID:          sub.TierID.String(),
		Status:          sub.Status,
		TotalAmount:     sub.TotalAmount,
		PlatformFee:     sub.PlatformFee,
		CreatorEarnings: sub.CreatorEarnings,
		Timestamp:       time.Now(),
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(sub.ID.String()),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Errorw("Failed to publish subscription event", "error", err, "topic", topic, "subscriptionID", sub.ID)
		return fmt.Errorf("failed to publish subscription event: %w", err)
	}

	p.log.Debugw("Published subscription event",
		"topic", topic, "subscriptionID", sub.ID, "partition", partition, "offset", offset)
	return nil
}

// Close закрывает продюсер
func (p *kafkaSubscriptionProducer) Close() error {
	return p.producer.Close()
}

// NoOpProducer заглушка, используется когда Kafka не сконфигурирована
type NoOpProducer struct{}

func NewNoOpProducer() *NoOpProducer { return &NoOpProducer{} }

func (NoOpProducer) PublishSubscriptionCreated(context.Context, *domain.Subscription) error {
	return nil
}
func (NoOpProducer) PublishSubscriptionActivated(context.Context, *domain.Subscription) error {
	return nil
}
func (NoOpProducer) PublishSubscriptionCancelled(context.Context, *domain.Subscription) error {
	return nil
}
func (NoOpProducer) PublishSubscriptionPastDue(context.Context, *domain.Subscription) error {
	return nil
}
func (NoOpProducer) Close() error { return nil }
