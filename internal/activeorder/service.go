package activeorder

import (
	"context"
	"fmt"
	"time"

	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// Service 活跃订单服务：TTL 存储 + 完成订单归档。
type Service struct {
	repo       Repository
	archive    Archive
	defaultTTL time.Duration
	log        logger.Logger
}

// NewService 创建服务。archive 可以为 nil（仅存储模式）。
func NewService(repo Repository, archive Archive, defaultTTL time.Duration, log logger.Logger) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		repo:       repo,
		archive:    archive,
		defaultTTL: defaultTTL,
		log:        log,
	}
}

// Get 返回用户的活跃订单；没有时返回 ErrNotFound。
func (s *Service) Get(ctx context.Context, userID string) (*order.Snapshot, error) {
	return s.repo.Get(ctx, userID)
}

// Put 写入（覆盖）用户的活跃订单。完成态的订单顺带归档：
// 客户端稍后会 DELETE 活跃记录，归档是完成订单唯一留存的副本。
// 归档失败只记日志，不影响活跃存储的写入结果。
func (s *Service) Put(ctx context.Context, userID string, snap *order.Snapshot, ttl time.Duration) error {
	if snap == nil {
		return fmt.Errorf("order is nil")
	}
	if snap.OrderID == "" {
		return fmt.Errorf("order_id required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if err := s.repo.Put(ctx, userID, snap, ttl); err != nil {
		return err
	}

	if snap.Status == order.StatusCompleted && s.archive != nil {
		if err := s.archive.Save(ctx, snap); err != nil {
			s.log.Errorf("archive completed order %s failed: %v", snap.OrderID, err)
		}
	}
	return nil
}

// Delete 清除用户的活跃订单。不存在时也视为成功。
func (s *Service) Delete(ctx context.Context, userID string) error {
	return s.repo.Delete(ctx, userID)
}

// History 分页返回用户的归档订单（新的在前）。未配置归档时返回空列表。
func (s *Service) History(ctx context.Context, userID string, offset, limit int) ([]ArchivedOrder, int64, error) {
	if s.archive == nil {
		return []ArchivedOrder{}, 0, nil
	}
	return s.archive.ListByUser(ctx, userID, offset, limit)
}
