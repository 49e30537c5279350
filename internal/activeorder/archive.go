package activeorder

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SwiftCourier/SwiftCourier/internal/order"
)

// Archive 已完成订单的落库归档。活跃存储里的记录会被清掉，
// 归档是配送完成后唯一留存的服务端副本。
type Archive interface {
	Save(ctx context.Context, snap *order.Snapshot) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]ArchivedOrder, int64, error)
}

// ArchivedOrder 归档订单 GORM 模型。
type ArchivedOrder struct {
	ID uint `gorm:"primaryKey"`

	OrderID  string `gorm:"uniqueIndex;size:36;not null"`
	UserID   string `gorm:"index;size:36;not null"`
	DriverID string `gorm:"index;size:36"`

	PickupAddress string `gorm:"size:255"`
	DropAddress   string `gorm:"size:255"`
	Vehicle       string `gorm:"size:32"`

	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// MySQLArchive 基于 MySQL 的归档实现。
type MySQLArchive struct {
	db *gorm.DB
}

// NewMySQLArchive 创建归档并迁移表结构
func NewMySQLArchive(db *gorm.DB) (*MySQLArchive, error) {
	if err := db.AutoMigrate(&ArchivedOrder{}); err != nil {
		return nil, fmt.Errorf("migrate archived_orders: %w", err)
	}
	return &MySQLArchive{db: db}, nil
}

// Save 归档一条已完成订单。同一订单重复归档是 no-op（订单号唯一）。
func (a *MySQLArchive) Save(ctx context.Context, snap *order.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	rec := ArchivedOrder{
		OrderID:       snap.OrderID,
		UserID:        snap.UserID,
		DriverID:      snap.DriverID,
		PickupAddress: snap.Pickup.Address,
		DropAddress:   snap.Drop.Address,
		Vehicle:       snap.Vehicle,
		CompletedAt:   snap.CompletedAt,
	}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&rec).Error
}

// ListByUser 按用户分页列出历史订单，新的在前。
func (a *MySQLArchive) ListByUser(ctx context.Context, userID string, offset, limit int) ([]ArchivedOrder, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := a.db.WithContext(ctx).Model(&ArchivedOrder{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []ArchivedOrder
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
