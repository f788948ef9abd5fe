package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"consumption-tracker/internal/models"
	"consumption-tracker/internal/observability"
)

const (
	cacheKeyCategories = "tracker:%s:categories"
	cacheKeyBrands     = "tracker:%s:brands:%s"
	cacheKeyEmails     = "tracker:%s:manager_emails"
)

// CachedProvider caches the slow-moving catalog reads of another provider.
// Snapshots, events and reports always go straight through.
type CachedProvider struct {
	next    Provider
	cache   Cache
	orgID   string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewCachedProvider(next Provider, cache Cache, orgID string, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		next:    next,
		cache:   cache,
		orgID:   orgID,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *CachedProvider) ListCategories(ctx context.Context) ([]string, error) {
	return cachedList(ctx, p, "categories", fmt.Sprintf(cacheKeyCategories, p.orgID), func() ([]string, error) {
		return p.next.ListCategories(ctx)
	})
}

func (p *CachedProvider) ListBrands(ctx context.Context, category string) ([]string, error) {
	return cachedList(ctx, p, "brands", fmt.Sprintf(cacheKeyBrands, p.orgID, category), func() ([]string, error) {
		return p.next.ListBrands(ctx, category)
	})
}

func (p *CachedProvider) ListManagerEmails(ctx context.Context) ([]string, error) {
	return cachedList(ctx, p, "emails", fmt.Sprintf(cacheKeyEmails, p.orgID), func() ([]string, error) {
		return p.next.ListManagerEmails(ctx)
	})
}

func (p *CachedProvider) UpdateManagerEmails(ctx context.Context, emails []string) error {
	if err := p.next.UpdateManagerEmails(ctx, emails); err != nil {
		return err
	}
	if err := p.cache.Set(ctx, fmt.Sprintf(cacheKeyEmails, p.orgID), emails, p.ttl); err != nil {
		p.logger.Warn("failed to refresh cached manager emails", "error", err)
	}
	return nil
}

// Invalidate drops every cached catalog entry of the organization.
func (p *CachedProvider) Invalidate(ctx context.Context) error {
	return p.cache.DeletePrefix(ctx, fmt.Sprintf("tracker:%s:", p.orgID))
}

func (p *CachedProvider) LoadLiveInventorySnapshot(ctx context.Context, sourceKey string) ([]models.CatalogItem, error) {
	return p.next.LoadLiveInventorySnapshot(ctx, sourceKey)
}

func (p *CachedProvider) CreateEvent(ctx context.Context, name string) (string, error) {
	return p.next.CreateEvent(ctx, name)
}

func (p *CachedProvider) UpdateEvent(ctx context.Context, eventID, name string) error {
	return p.next.UpdateEvent(ctx, eventID, name)
}

func (p *CachedProvider) SendFormattedReport(ctx context.Context, eventID string, recipients []string, report models.ConsumptionReport) error {
	return p.next.SendFormattedReport(ctx, eventID, recipients, report)
}

func cachedList(ctx context.Context, p *CachedProvider, kind, key string, load func() ([]string, error)) ([]string, error) {
	var cached []string
	err := p.cache.Get(ctx, key, &cached)
	if err == nil {
		p.metrics.CacheHit(kind)
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		p.logger.Warn("catalog cache read failed", "key", key, "error", err)
	}
	p.metrics.CacheMiss(kind)

	values, err := load()
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, values, p.ttl); err != nil {
		p.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
	return values, nil
}
