package usecase

import (
	"context"
	"fmt"

	"Kessan/internal/domain/repository"
	"Kessan/internal/newsmap"
	applogger "Kessan/pkg/logger"
	"Kessan/pkg/queue"
)

// MappingJob links one queued article to the stocks it mentions.
type MappingJob struct {
	logger *applogger.Logger
	news   repository.NewsStore
	mapper *newsmap.Service
}

func NewMappingJob(lgr *applogger.Logger, news repository.NewsStore, mapper *newsmap.Service) *MappingJob {
	return &MappingJob{logger: lgr, news: news, mapper: mapper}
}

func (j *MappingJob) Name() string { return "news_stock_mapping" }

func (j *MappingJob) Type() string { return MappingMessageType }

func (j *MappingJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[MappingPayload](payload)
	if err != nil {
		return fmt.Errorf("parse mapping payload: %w", err)
	}

	article, err := j.news.GetByID(ctx, p.ArticleID)
	if err != nil {
		return fmt.Errorf("load article %s: %w", p.ArticleID, err)
	}

	links, err := j.mapper.CreateLinks(ctx, article, false)
	if err != nil {
		return fmt.Errorf("link article %s: %w", p.ArticleID, err)
	}
	j.logger.Debug("article mapped",
		applogger.String("article_id", article.ID),
		applogger.Int("links", len(links)))
	return nil
}

var _ queue.Job = (*MappingJob)(nil)
