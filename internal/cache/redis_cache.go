package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"apotekpos/backend/internal/domain"
)

type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) GetStockSummary(ctx context.Context, productID string) (*domain.StockSummary, bool, error) {
	val, err := c.client.Get(ctx, stockKey(productID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.StockSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) SetStockSummary(ctx context.Context, productID string, summary *domain.StockSummary, ttl time.Duration) error {
	if summary == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, stockKey(productID), payload, ttl).Err()
}

func (c *RedisSummaryCache) InvalidateProduct(ctx context.Context, productID string) error {
	return c.client.Del(ctx, stockKey(productID)).Err()
}

func (c *RedisSummaryCache) GetAlertReport(ctx context.Context, windowDays int) (*domain.AlertReport, bool, error) {
	val, err := c.client.Get(ctx, alertKey(windowDays)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.AlertReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisSummaryCache) SetAlertReport(ctx context.Context, windowDays int, report *domain.AlertReport, ttl time.Duration) error {
	if report == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, alertKey(windowDays), payload, ttl).Err()
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}

func alertKey(windowDays int) string {
	return fmt.Sprintf("alerts:%d", windowDays)
}
