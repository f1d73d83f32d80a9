// Package cache provides read-through caching for plan limits.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/govai/console/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PlanCache stores plan limits keyed by plan ID.
type PlanCache interface {
	// Get returns the cached plan. The bool is false on a miss.
	Get(ctx context.Context, planID domain.PlanID) (*domain.PlanLimit, bool, error)
	Set(ctx context.Context, plan *domain.PlanLimit) error
	Invalidate(ctx context.Context, planID domain.PlanID) error
}

// NewRedisClient parses a redis:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// =============================================================================
// Redis
// =============================================================================

const keyPrefix = "govai:plan:"

// RedisPlanCache caches plans as JSON strings with a TTL.
type RedisPlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPlanCache creates a plan cache on an existing client.
func NewRedisPlanCache(client *redis.Client, ttl time.Duration) *RedisPlanCache {
	return &RedisPlanCache{client: client, ttl: ttl}
}

func (c *RedisPlanCache) Get(ctx context.Context, planID domain.PlanID) (*domain.PlanLimit, bool, error) {
	data, err := c.client.Get(ctx, planKey(planID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	plan, err := decodePlan(data)
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

func (c *RedisPlanCache) Set(ctx context.Context, plan *domain.PlanLimit) error {
	data, err := encodePlan(plan)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, planKey(plan.PlanID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisPlanCache) Invalidate(ctx context.Context, planID domain.PlanID) error {
	if err := c.client.Del(ctx, planKey(planID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func planKey(planID domain.PlanID) string {
	return keyPrefix + string(planID)
}

// =============================================================================
// No-op
// =============================================================================

// NopPlanCache always misses. Used when REDIS_URL is not configured.
type NopPlanCache struct{}

func (NopPlanCache) Get(context.Context, domain.PlanID) (*domain.PlanLimit, bool, error) {
	return nil, false, nil
}

func (NopPlanCache) Set(context.Context, *domain.PlanLimit) error { return nil }

func (NopPlanCache) Invalidate(context.Context, domain.PlanID) error { return nil }

// =============================================================================
// Encoding
// =============================================================================

type cachedPlan struct {
	PlanID                string          `json:"plan_id"`
	DisplayName           string          `json:"display_name"`
	MonthlyChatLimit      int64           `json:"monthly_chat_limit"`
	MonthlyDocGenLimit    int64           `json:"monthly_doc_gen_limit"`
	StorageLimitMB        int64           `json:"storage_limit_mb"`
	MaxUsers              int64           `json:"max_users"`
	Features              map[string]bool `json:"features"`
	MaxMonthlyCostUSD     *float64        `json:"max_monthly_cost_usd,omitempty"`
	ReasoningMonthlyLimit *int64          `json:"reasoning_monthly_limit,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func encodePlan(p *domain.PlanLimit) ([]byte, error) {
	data, err := json.Marshal(cachedPlan{
		PlanID:                string(p.PlanID),
		DisplayName:           p.DisplayName,
		MonthlyChatLimit:      p.MonthlyChatLimit,
		MonthlyDocGenLimit:    p.MonthlyDocGenLimit,
		StorageLimitMB:        p.StorageLimitMB,
		MaxUsers:              p.MaxUsers,
		Features:              p.Features,
		MaxMonthlyCostUSD:     p.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: p.ReasoningMonthlyLimit,
		UpdatedAt:             p.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return data, nil
}

func decodePlan(data []byte) (*domain.PlanLimit, error) {
	var c cachedPlan
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &domain.PlanLimit{
		PlanID:                domain.PlanID(c.PlanID),
		DisplayName:           c.DisplayName,
		MonthlyChatLimit:      c.MonthlyChatLimit,
		MonthlyDocGenLimit:    c.MonthlyDocGenLimit,
		StorageLimitMB:        c.StorageLimitMB,
		MaxUsers:              c.MaxUsers,
		Features:              c.Features,
		MaxMonthlyCostUSD:     c.MaxMonthlyCostUSD,
		ReasoningMonthlyLimit: c.ReasoningMonthlyLimit,
		UpdatedAt:             c.UpdatedAt,
	}, nil
}
