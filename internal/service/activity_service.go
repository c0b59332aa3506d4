package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/portal-resilience-api/internal/dto"
	"github.com/noah-isme/portal-resilience-api/internal/models"
	"github.com/noah-isme/portal-resilience-api/internal/observability"
	"github.com/noah-isme/portal-resilience-api/internal/repository"
)

const (
	defaultRecentActivities = 10
	maxRecentActivities     = 100
	// cacheGenerationMinTTL outlives every cached list so an expired generation
	// can never resurrect an old entry.
	cacheGenerationMinTTL = 24 * time.Hour
)

// ActivityRecorder appends entries to a user's activity log.
type ActivityRecorder interface {
	Record(ctx context.Context, userID string, activityType models.ActivityType, message string, metadata models.Metadata) error
}

// ActivityService exposes the activity log to handlers.
type ActivityService interface {
	ActivityRecorder
	Create(ctx context.Context, userID string, payload dto.ActivityCreateRequest) error
	RecentActivities(ctx context.Context, userID string, limit int) dto.ActivityListResponse
}

type activityService struct {
	repo      repository.ActivityLogRepository
	cache     *redis.Client
	ttl       time.Duration
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewActivityService constructs the activity log service. cache may be nil.
func NewActivityService(repo repository.ActivityLogRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ActivityService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &activityService{
		repo:      repo,
		cache:     cache,
		ttl:       ttl,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Create(ctx context.Context, userID string, payload dto.ActivityCreateRequest) error {
	activityType, ok := models.ParseActivityType(payload.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidActivityType, payload.Type)
	}
	metadata, err := models.MetadataFromMap(payload.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return s.Record(ctx, userID, activityType, payload.Message, metadata)
}

// Record stores one entry. Failures are logged and returned; callers treating the
// log as best effort may discard the error.
func (s *activityService) Record(ctx context.Context, userID string, activityType models.ActivityType, message string, metadata models.Metadata) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		observability.Logger(ctx, s.logger).Warn().Str("type", string(activityType)).Msg("activity dropped: no authenticated user")
		observability.ActivityWrites().WithLabelValues("skipped").Inc()
		return ErrMissingUser
	}
	if !activityType.Valid() {
		observability.ActivityWrites().WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: %s", ErrInvalidActivityType, activityType)
	}

	entry := models.ActivityRecord{
		UserID:   userID,
		Type:     activityType,
		Message:  strings.TrimSpace(s.sanitizer.Sanitize(message)),
		Metadata: maskMetadata(metadata),
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		observability.Logger(ctx, s.logger).Error().Err(err).Str("user_id", userID).Str("type", string(activityType)).Msg("failed to persist activity")
		observability.ActivityWrites().WithLabelValues("failure").Inc()
		return fmt.Errorf("record activity: %w", err)
	}

	observability.ActivityWrites().WithLabelValues("success").Inc()
	s.invalidate(ctx, userID)
	return nil
}

// RecentActivities never fails: read errors are logged and an empty list is returned.
func (s *activityService) RecentActivities(ctx context.Context, userID string, limit int) dto.ActivityListResponse {
	empty := dto.ActivityListResponse{Items: []dto.ActivityResponse{}}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return empty
	}
	limit = clampLimit(limit, defaultRecentActivities, maxRecentActivities)

	// The generation is read before the store so a list loaded across an
	// invalidation lands under a key no reader will use again.
	generation, cacheable := s.generation(ctx, userID)
	if cacheable {
		if items, ok := s.cached(ctx, userID, generation); ok {
			observability.ActivityCache().WithLabelValues("hit").Inc()
			return dto.ActivityListResponse{Items: truncateActivities(items, limit), CacheHit: true}
		}
	}

	entries, err := s.repo.ListRecent(ctx, userID, maxRecentActivities)
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Str("user_id", userID).Msg("failed to load recent activities")
		observability.ActivityCache().WithLabelValues("error").Inc()
		return empty
	}

	items := make([]dto.ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewActivityResponse(entry))
	}

	if cacheable {
		s.store(ctx, userID, generation, items)
	}
	observability.ActivityCache().WithLabelValues("miss").Inc()

	return dto.ActivityListResponse{Items: truncateActivities(items, limit)}
}

func (s *activityService) cacheKey(userID string, generation int64) string {
	return fmt.Sprintf("activities:recent:v1:%s:%d", userID, generation)
}

func (s *activityService) generationKey(userID string) string {
	return fmt.Sprintf("activities:recent:gen:%s", userID)
}

// generation returns the user's current cache generation. ok is false when
// the cache is disabled or unreachable.
func (s *activityService) generation(ctx context.Context, userID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Get(ctx, s.generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		observability.Logger(ctx, s.logger).Debug().Err(err).Msg("activity cache generation unavailable")
		return 0, false
	}
	return generation, true
}

func (s *activityService) cached(ctx context.Context, userID string, generation int64) ([]dto.ActivityResponse, bool) {
	payload, err := s.cache.Get(ctx, s.cacheKey(userID, generation)).Bytes()
	if err != nil || len(payload) == 0 {
		return nil, false
	}
	var items []dto.ActivityResponse
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, false
	}
	return items, true
}

func (s *activityService) store(ctx context.Context, userID string, generation int64, items []dto.ActivityResponse) {
	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(userID, generation), payload, s.ttl).Err(); err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Msg("failed to write activity cache")
	}
}

// invalidate bumps the user's generation, orphaning every cached list.
func (s *activityService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	generationTTL := cacheGenerationMinTTL
	if 2*s.ttl > generationTTL {
		generationTTL = 2 * s.ttl
	}

	key := s.generationKey(userID)
	_, err := s.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, generationTTL)
		return nil
	})
	if err != nil {
		observability.Logger(ctx, s.logger).Warn().Err(err).Msg("failed to invalidate activity cache")
	}
}

func truncateActivities(items []dto.ActivityResponse, limit int) []dto.ActivityResponse {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func maskMetadata(metadata models.Metadata) models.Metadata {
	if metadata == nil {
		return models.Metadata{}
	}

	masked := metadata.Clone()
	for key := range masked {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") || strings.Contains(lower, "password") {
			masked[key] = models.StringValue("***")
		}
	}
	return masked
}
