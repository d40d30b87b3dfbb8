// Package catalog assembles browsable marketplace pages: it validates
// filter state, consults the result cache, fetches raw rows from the data
// gateway, applies any facet the gateway dialect cannot express, and
// attaches per-viewer action links last so cached data stays viewer-free.
package catalog

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/filter"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/links"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/metrics"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/store"
)

// refColumns is the narrow projection used to derive totals and distinct
// counts from a single snapshot.
var refColumns = []string{"id", "category", "owner_shop_name"}

// ItemSource is the slice of the gateway client the orchestrator needs.
type ItemSource interface {
	FetchItems(ctx context.Context, q *gateway.Query) ([]market.Item, error)
	FetchRefs(ctx context.Context, q *gateway.Query) ([]market.ItemRef, error)
	GetItem(ctx context.Context, id string) (market.Item, bool, error)
}

// Service wires the catalog collaborators together. Cache, Metrics and
// Logger are optional; Source and Links are required.
type Service struct {
	Source  ItemSource
	Cache   store.ResultCache
	Links   *links.Generator
	Metrics *metrics.Registry
	Logger  *log.Logger
	TTL     time.Duration
}

func NewService(source ItemSource, cache store.ResultCache, gen *links.Generator, reg *metrics.Registry) *Service {
	if gen == nil {
		gen = links.NewGenerator("")
	}
	return &Service{
		Source:  source,
		Cache:   cache,
		Links:   gen,
		Metrics: reg,
		TTL:     store.DefaultTTL,
	}
}

// LoadCatalog returns one page of the catalog as seen by user. Validation
// problems are the only error returns; gateway failures surface as a
// degraded page with err == nil so browsing stays up.
func (s *Service) LoadCatalog(ctx context.Context, filters market.FilterState, page, pageSize int, user market.UserContext) (*market.CatalogPage, error) {
	errs := filter.Validate(filters)
	if page < 1 {
		errs = append(errs, market.ValidationError{Field: "page", Message: "must be at least 1"})
	}
	if pageSize < 1 {
		errs = append(errs, market.ValidationError{Field: "page_size", Message: "must be at least 1"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	requestID := httpx.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	key := filters.QueryKey(page, pageSize)
	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, key)
		if err == nil {
			if s.Metrics != nil {
				s.Metrics.IncCacheHit()
			}
			return s.assemble(cached, page, pageSize, user, requestID), nil
		}
		if !errors.Is(err, redis.Nil) {
			s.logf("cache read failed key=%s err=%v request_id=%s", key, err, requestID)
		}
		if s.Metrics != nil {
			s.Metrics.IncCacheMiss()
		}
	}

	cached, reason := s.fetch(ctx, filters, page, pageSize)
	if reason != "" {
		if s.Metrics != nil {
			s.Metrics.IncDegraded(reason)
		}
		s.logf("catalog degraded reason=%s request_id=%s", reason, requestID)
		return &market.CatalogPage{
			Items:      []market.EnrichedItem{},
			Pagination: market.Pagination{CurrentPage: page},
			Degraded:   true,
			Reason:     reason,
			RequestID:  requestID,
		}, nil
	}

	// A result arriving after the caller walked away must not populate a
	// key nobody asked to refresh.
	if s.Cache != nil && ctx.Err() == nil {
		if err := s.Cache.Set(ctx, key, cached, s.ttl()); err != nil {
			s.logf("cache write failed key=%s err=%v request_id=%s", key, err, requestID)
		}
	}
	return s.assemble(cached, page, pageSize, user, requestID), nil
}

// GetItem returns one enriched item. Unlike LoadCatalog, gateway failures
// propagate so the transport layer can answer with a gateway status.
func (s *Service) GetItem(ctx context.Context, id string, user market.UserContext) (market.EnrichedItem, bool, error) {
	start := time.Now()
	item, found, err := s.Source.GetItem(ctx, id)
	s.observeGateway(start)
	if err != nil {
		return market.EnrichedItem{}, false, err
	}
	if !found {
		return market.EnrichedItem{}, false, nil
	}
	return market.EnrichedItem{Item: item, Links: s.Links.Generate(item, user)}, true, nil
}

func (s *Service) fetch(ctx context.Context, filters market.FilterState, page, pageSize int) (market.CachedPage, string) {
	if filter.HasLocalFacet(filters) {
		return s.fetchWithLocalFacet(ctx, filters, page, pageSize)
	}
	return s.fetchNative(ctx, filters, page, pageSize)
}

// fetchNative serves filter states the gateway dialect fully expresses:
// a projection snapshot for totals and stats, then one page of rows.
func (s *Service) fetchNative(ctx context.Context, filters market.FilterState, page, pageSize int) (market.CachedPage, string) {
	refsQuery := filter.BuildQuery(filters).Select(refColumns...)
	start := time.Now()
	refs, err := s.Source.FetchRefs(ctx, refsQuery)
	s.observeGateway(start)
	if err != nil {
		return market.CachedPage{}, reasonFor(err)
	}

	rowsQuery := filter.BuildQuery(filters).
		OrderBy("name", "asc").
		OrderBy("id", "asc").
		Limit(pageSize).
		Offset((page - 1) * pageSize)
	start = time.Now()
	rows, err := s.Source.FetchItems(ctx, rowsQuery)
	s.observeGateway(start)
	if err != nil {
		return market.CachedPage{}, reasonFor(err)
	}

	shops, categories := refStats(refs)
	return market.CachedPage{
		Rows:          rows,
		TotalItems:    len(refs),
		ShopCount:     shops,
		CategoryCount: categories,
	}, ""
}

// fetchWithLocalFacet serves filter states carrying a facet the dialect
// cannot express. All native-filtered rows are fetched in one call; the
// local predicate, the totals and the page slice all derive from that one
// surviving set.
func (s *Service) fetchWithLocalFacet(ctx context.Context, filters market.FilterState, page, pageSize int) (market.CachedPage, string) {
	q := filter.BuildQuery(filters).
		OrderBy("name", "asc").
		OrderBy("id", "asc")
	start := time.Now()
	rows, err := s.Source.FetchItems(ctx, q)
	s.observeGateway(start)
	if err != nil {
		return market.CachedPage{}, reasonFor(err)
	}

	matched := filter.Apply(filters, rows)
	shops, categories := itemStats(matched)

	offset := (page - 1) * pageSize
	var pageRows []market.Item
	if offset < len(matched) {
		end := offset + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		pageRows = matched[offset:end]
	}
	return market.CachedPage{
		Rows:          pageRows,
		TotalItems:    len(matched),
		ShopCount:     shops,
		CategoryCount: categories,
	}, ""
}

func (s *Service) assemble(cached market.CachedPage, page, pageSize int, user market.UserContext, requestID string) *market.CatalogPage {
	totalPages := 0
	if cached.TotalItems > 0 {
		totalPages = (cached.TotalItems + pageSize - 1) / pageSize
	}
	return &market.CatalogPage{
		Items: s.Links.Enrich(cached.Rows, user),
		Pagination: market.Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalItems:  cached.TotalItems,
		},
		Stats: market.Stats{
			ShopCount:     cached.ShopCount,
			CategoryCount: cached.CategoryCount,
		},
		RequestID: requestID,
	}
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return store.DefaultTTL
}

func (s *Service) observeGateway(start time.Time) {
	if s.Metrics != nil {
		s.Metrics.ObserveGatewayLatency(time.Since(start))
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func reasonFor(err error) string {
	if errors.Is(err, gateway.ErrBadResponse) {
		return market.ReasonGatewayBadResponse
	}
	return market.ReasonGatewayUnavailable
}

func refStats(refs []market.ItemRef) (shops, categories int) {
	shopSet := map[string]struct{}{}
	categorySet := map[string]struct{}{}
	for _, ref := range refs {
		if ref.OwnerShopName != "" {
			shopSet[ref.OwnerShopName] = struct{}{}
		}
		if ref.Category != "" {
			categorySet[ref.Category] = struct{}{}
		}
	}
	return len(shopSet), len(categorySet)
}

func itemStats(items []market.Item) (shops, categories int) {
	shopSet := map[string]struct{}{}
	categorySet := map[string]struct{}{}
	for _, item := range items {
		if item.OwnerShopName != "" {
			shopSet[item.OwnerShopName] = struct{}{}
		}
		if item.Category != "" {
			categorySet[item.Category] = struct{}{}
		}
	}
	return len(shopSet), len(categorySet)
}
