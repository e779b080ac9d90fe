package repository

import (
	"context"
	"fmt"

	"Kessan/internal/domain/models"
	pkgkafka "Kessan/pkg/kafka"
)

// DefaultArticleTopic is where freshly ingested articles land.
const DefaultArticleTopic = "kessan.news.articles"

// KafkaPublisher fans ingested articles out on Kafka, keyed by content
// hash so replays of the same article land on the same partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultArticleTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishArticle(ctx context.Context, article *models.NewsArticle) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(article.ContentHash), article); err != nil {
		return fmt.Errorf("publish article %s: %w", article.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
