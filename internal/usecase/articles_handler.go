package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"Kessan/internal/domain/models"
	"Kessan/internal/domain/repository"
	applogger "Kessan/pkg/logger"
	"Kessan/pkg/queue"
)

// MappingMessageType routes mapping work on the Redis queue.
const MappingMessageType = "news.map"

// MappingPayload is the queue payload enqueued per persisted article.
type MappingPayload struct {
	ArticleID string `json:"article_id"`
}

// ArticlesHandler consumes the article topic: persist, then hand the
// mapping work to the Redis queue.
type ArticlesHandler struct {
	logger  *applogger.Logger
	metrics repository.Metrics
	news    repository.NewsStore
	jobs    queue.Service
	topic   string
}

func NewArticlesHandler(
	lgr *applogger.Logger,
	metrics repository.Metrics,
	news repository.NewsStore,
	jobs queue.Service,
	topic string,
) *ArticlesHandler {
	return &ArticlesHandler{
		logger:  lgr,
		metrics: metrics,
		news:    news,
		jobs:    jobs,
		topic:   topic,
	}
}

func (h *ArticlesHandler) Topic() string { return h.topic }

func (h *ArticlesHandler) Handle(ctx context.Context, payload []byte) error {
	var article models.NewsArticle
	if err := json.Unmarshal(payload, &article); err != nil {
		return fmt.Errorf("decode article: %w", err)
	}
	if article.ID == "" || article.ContentHash == "" {
		return fmt.Errorf("article missing id or content hash")
	}

	if err := h.news.Insert(ctx, &article); err != nil {
		return fmt.Errorf("persist article %s: %w", article.ID, err)
	}

	if err := h.jobs.PublishMessage(ctx, MappingMessageType, MappingPayload{ArticleID: article.ID}); err != nil {
		// article is stored; mapping can be replayed later
		h.logger.Error("failed to enqueue mapping job",
			applogger.String("article_id", article.ID),
			applogger.Error(err))
		h.metrics.RecordError("mapping_enqueue")
		return nil
	}

	h.logger.Debug("article stored and queued for mapping",
		applogger.String("article_id", article.ID),
		applogger.String("source", article.Source))
	return nil
}
