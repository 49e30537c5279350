package activeorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// ErrNotFound 用户没有活跃订单。
var ErrNotFound = errors.New("active order not found")

// Repository 活跃订单的服务端存储（每个用户最多一条，带 TTL 兜底过期）。
type Repository interface {
	Get(ctx context.Context, userID string) (*order.Snapshot, error)
	Put(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, userID string) error
}

// RedisRepository 基于 Redis 的活跃订单存储。
// 活跃订单是短生命周期数据，TTL 防止异常退出的订单永久残留。
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository 创建存储
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func activeOrderKey(userID string) string {
	return fmt.Sprintf("active_order:%s", userID)
}

func (r *RedisRepository) Get(ctx context.Context, userID string) (*order.Snapshot, error) {
	raw, err := r.client.Get(ctx, activeOrderKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var snap order.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode active order: %w", err)
	}
	return &snap, nil
}

func (r *RedisRepository) Put(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode active order: %w", err)
	}
	if err := r.client.Set(ctx, activeOrderKey(userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, activeOrderKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
