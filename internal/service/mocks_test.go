package service

import (
	"context"

	"github.com/mberdnikov/shortly/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockLinkRepository struct {
	mock.Mock
}

func (r *MockLinkRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.Link, error) {
	args := r.Called(ctx, shortCode, originalURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) GetByOriginalURL(ctx context.Context, originalURL string) (*models.Link, error) {
	args := r.Called(ctx, originalURL)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) ResolveShortCode(ctx context.Context, shortCode string) (*models.Link, error) {
	args := r.Called(ctx, shortCode)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) List(ctx context.Context, limit, offset int) ([]models.Link, error) {
	args := r.Called(ctx, limit, offset)
	links, _ := args.Get(0).([]models.Link)
	return links, args.Error(1)
}

func (r *MockLinkRepository) Count(ctx context.Context) (int64, error) {
	args := r.Called(ctx)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}

func (r *MockLinkRepository) Stats(ctx context.Context) (*models.LinkStats, error) {
	args := r.Called(ctx)
	stats, _ := args.Get(0).(*models.LinkStats)
	return stats, args.Error(1)
}

func (r *MockLinkRepository) Delete(ctx context.Context, id int64) (int64, error) {
	args := r.Called(ctx, id)
	deleted, _ := args.Get(0).(int64)
	return deleted, args.Error(1)
}

func (r *MockLinkRepository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	args := r.Called(ctx, ids)
	deleted, _ := args.Get(0).(int64)
	return deleted, args.Error(1)
}

func (r *MockLinkRepository) Ping(ctx context.Context) error {
	args := r.Called(ctx)
	return args.Error(0)
}
