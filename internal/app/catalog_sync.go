package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"concierge/internal/adapters/observability"
	"concierge/internal/catalog"
	"concierge/internal/domain"
)

const catalogCacheKey = "catalog:snapshot"

// CatalogSyncService pulls the catalog from the backend and publishes it as
// a new snapshot. repo and cache are optional.
type CatalogSyncService struct {
	src     domain.CatalogSource
	repo    domain.CatalogRepository
	cache   domain.Cache
	store   *catalog.Store
	workers int
	ttlSec  int

	mu sync.Mutex // one refresh at a time
}

func NewCatalogSyncService(src domain.CatalogSource, repo domain.CatalogRepository, cache domain.Cache, store *catalog.Store, workers, cacheTTLSec int) *CatalogSyncService {
	if workers <= 0 {
		workers = 4
	}
	return &CatalogSyncService{src: src, repo: repo, cache: cache, store: store, workers: workers, ttlSec: cacheTTLSec}
}

type propertyChildren struct {
	rooms []domain.RoomType
	rates []domain.RateCode
	err   error
}

// Refresh fetches a full catalog and swaps it in. Any failure before the swap
// leaves the previous snapshot live.
func (s *CatalogSyncService) Refresh(ctx context.Context) (*catalog.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	// 1) Properties (parent first).
	raw, err := s.src.GetProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch properties: %w", err)
	}
	var props []domain.Property
	for _, m := range raw {
		if p, ok := mapProperty(m); ok {
			props = append(props, p)
		}
	}

	// 2) Room types and rate codes per active property, bounded fan-out.
	children := make([]propertyChildren, len(props))
	sem := semaphore.NewWeighted(int64(s.workers))
	var wg sync.WaitGroup
	for i, p := range props {
		if !p.Active {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, p domain.Property) {
			defer wg.Done()
			defer sem.Release(1)
			children[i] = s.fetchChildren(ctx, p.ID)
		}(i, p)
	}
	wg.Wait()

	data := domain.CatalogData{Properties: props}
	for i, c := range children {
		if c.err != nil {
			return nil, fmt.Errorf("property %d: %w", props[i].ID, c.err)
		}
		data.RoomTypes = append(data.RoomTypes, c.rooms...)
		data.RateCodes = append(data.RateCodes, c.rates...)
	}

	// 3) Validate before anything is written.
	if _, err := catalog.Build(data, 0); err != nil {
		return nil, err
	}
	if s.repo != nil {
		if err := s.repo.SaveCatalog(ctx, data); err != nil {
			return nil, fmt.Errorf("persist catalog: %w", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, catalogCacheKey, data, s.ttlSec); err != nil {
			log.Warn().Err(err).Msg("catalog cache write failed")
		}
	}

	// 4) Publish.
	ix, err := s.store.Replace(data)
	if err != nil {
		return nil, err
	}
	observability.SetCatalogGeneration(ix.Generation())
	log.Info().
		Uint64("generation", ix.Generation()).
		Int("properties", len(ix.AllProperties())).
		Int("room_types", len(data.RoomTypes)).
		Int("rate_codes", len(data.RateCodes)).
		Dur("took", time.Since(start)).
		Msg("catalog refreshed")
	return ix, nil
}

// fetchChildren treats a 404/401/403 on a child listing as "no records" and
// logs the miss; anything else fails the refresh.
func (s *CatalogSyncService) fetchChildren(ctx context.Context, propertyID int64) propertyChildren {
	var out propertyChildren

	rooms, err := s.src.GetRoomTypes(ctx, propertyID)
	if err != nil && !s.miss(ctx, propertyID, "room_types", err) {
		out.err = err
		return out
	}
	for _, m := range rooms {
		if rt, ok := mapRoomType(propertyID, m); ok {
			out.rooms = append(out.rooms, rt)
		}
	}

	rates, err := s.src.GetRateCodes(ctx, propertyID)
	if err != nil && !s.miss(ctx, propertyID, "rate_codes", err) {
		out.err = err
		return out
	}
	for _, m := range rates {
		if rc, ok := mapRateCode(propertyID, m); ok {
			out.rates = append(out.rates, rc)
		}
	}
	return out
}

func (s *CatalogSyncService) miss(ctx context.Context, propertyID int64, resource string, err error) bool {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = 404
	case errors.Is(err, domain.ErrUnauthorized):
		status = 401
	case errors.Is(err, domain.ErrForbidden):
		status = 403
	default:
		return false
	}
	log.Warn().Int64("property", propertyID).Str("resource", resource).Int("status", status).Msg("catalog resource missing")
	if s.repo != nil {
		_ = s.repo.LogMiss(ctx, propertyID, resource, status, err.Error())
	}
	return true
}

// Warm publishes the last known catalog, cache first, then the database.
// It never replaces a snapshot that is already live.
func (s *CatalogSyncService) Warm(ctx context.Context) (*catalog.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ix := s.store.Current(); ix != nil {
		return ix, nil
	}
	if s.cache != nil {
		var data domain.CatalogData
		ok, err := s.cache.Get(ctx, catalogCacheKey, &data)
		if err != nil {
			log.Warn().Err(err).Msg("catalog cache read failed")
		}
		if ok {
			if ix, err := s.publish(data, "cache"); err == nil {
				return ix, nil
			}
		}
	}
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	data, err := s.repo.LoadCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	ix, err := s.publish(data, "database")
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, catalogCacheKey, data, s.ttlSec); err != nil {
			log.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return ix, nil
}

func (s *CatalogSyncService) publish(data domain.CatalogData, source string) (*catalog.Index, error) {
	ix, err := s.store.Replace(data)
	if err != nil {
		log.Warn().Err(err).Str("source", source).Msg("stored catalog rejected")
		return nil, err
	}
	observability.SetCatalogGeneration(ix.Generation())
	log.Info().Uint64("generation", ix.Generation()).Str("source", source).Msg("catalog warmed")
	return ix, nil
}

// Run refreshes every interval until ctx is done.
func (s *CatalogSyncService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("catalog refresh failed; keeping previous snapshot")
			}
		}
	}
}
