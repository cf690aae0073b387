package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"anoncart/internal/model"
	"anoncart/internal/repository"
	"anoncart/pkg/breaker"
	"anoncart/pkg/log"
	"anoncart/pkg/utils"
)

// Service shop/service lookups used to snapshot cart lines
type Service interface {
	// Get the current offering of a service at a shop
	GetOffering(ctx context.Context, shopID, serviceID uint64) (*model.Offering, error)

	// Get a shop's display name
	GetShopName(ctx context.Context, shopID uint64) (string, error)
}

// catalogService reads through a short-lived local cache; database calls are
// guarded by a circuit breaker
type catalogService struct {
	repo    repository.CatalogRepository
	cache   *bigcache.BigCache
	breaker *breaker.CircuitBreaker
}

// NewService creates a catalog service. cache may be nil to disable caching.
func NewService(repo repository.CatalogRepository, cache *bigcache.BigCache, cb *breaker.CircuitBreaker) Service {
	return &catalogService{
		repo:    repo,
		cache:   cache,
		breaker: cb,
	}
}

// NewCache creates the local offering cache
func NewCache(ctx context.Context, ttl time.Duration, shards int) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = shards
	cfg.CleanWindow = ttl
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}
	return cache, nil
}

// NewBreaker creates a breaker that ignores not-found answers
func NewBreaker(maxRequests uint32, interval, timeout time.Duration) *breaker.CircuitBreaker {
	return breaker.NewCircuitBreaker("catalog", breaker.Config{
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || utils.IsNotFound(err)
		},
		OnStateChange: func(name string, from, to breaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})
}

func offeringKey(shopID, serviceID uint64) string {
	return fmt.Sprintf("offering:%d:%d", shopID, serviceID)
}

// GetOffering gets an offering, from cache when possible
func (s *catalogService) GetOffering(ctx context.Context, shopID, serviceID uint64) (*model.Offering, error) {
	key := offeringKey(shopID, serviceID)
	if offering, ok := s.fromCache(key); ok {
		return offering, nil
	}

	var offering *model.Offering
	err := s.execute(ctx, func() error {
		var err error
		offering, err = s.repo.GetOffering(ctx, shopID, serviceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.toCache(key, offering)
	return offering, nil
}

// GetShopName gets a shop's display name
func (s *catalogService) GetShopName(ctx context.Context, shopID uint64) (string, error) {
	var shop *model.Shop
	err := s.execute(ctx, func() error {
		var err error
		shop, err = s.repo.GetShop(ctx, shopID)
		return err
	})
	if err != nil {
		return "", err
	}
	return shop.Name, nil
}

func (s *catalogService) execute(ctx context.Context, fn func() error) error {
	if s.breaker == nil {
		return fn()
	}

	err := s.breaker.Execute(ctx, fn)
	if breaker.IsCircuitBreakerError(err) {
		counts := s.breaker.Counts()
		log.WithFields(map[string]interface{}{
			"breaker":              s.breaker.Name(),
			"state":                s.breaker.State().String(),
			"consecutive_failures": counts.ConsecutiveFailures,
		}).Warn("catalog lookup rejected by circuit breaker")
		return utils.WrapError(err, utils.ErrServiceError)
	}
	if err != nil && !utils.IsNotFound(err) {
		return utils.WrapError(err, utils.ErrDatabaseError)
	}
	return err
}

func (s *catalogService) fromCache(key string) (*model.Offering, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			log.WithError(err).Warn("catalog cache read failed")
		}
		return nil, false
	}

	var offering model.Offering
	if err := json.Unmarshal(data, &offering); err != nil {
		return nil, false
	}
	return &offering, true
}

func (s *catalogService) toCache(key string, offering *model.Offering) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(offering)
	if err != nil {
		return
	}
	if err := s.cache.Set(key, data); err != nil {
		log.WithError(err).Warn("catalog cache write failed")
	}
}
