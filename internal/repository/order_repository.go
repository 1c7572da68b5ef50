package repository

import (
	"errors"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order, items []models.OrderItem) error
	GetByID(id uint) (*models.Order, error)
	GetByChannelAndExternalNo(channelID uint, externalOrderNo string) (*models.Order, error)
	ListByChannelAndExternalNos(channelID uint, externalNos []string) ([]models.Order, error)
	Updates(id uint, updates map[string]interface{}) error
	SetOutboundID(id uint, outboundID string) (bool, error)
	ListAdmin(filter OrderListFilter) ([]models.Order, int64, error)
	ListSyncedForPoll(limit int) ([]models.Order, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单与订单项
func (r *GormOrderRepository) Create(order *models.Order, items []models.OrderItem) error {
	if err := r.db.Create(order).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		if err := r.db.Create(&items).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByChannelAndExternalNo 根据自然键（渠道 + 渠道订单号）获取订单
func (r *GormOrderRepository) GetByChannelAndExternalNo(channelID uint, externalOrderNo string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").
		Where("channel_id = ? AND external_order_no = ?", channelID, externalOrderNo).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListByChannelAndExternalNos 按自然键批量获取订单（批量导入预取用，不带订单项）
func (r *GormOrderRepository) ListByChannelAndExternalNos(channelID uint, externalNos []string) ([]models.Order, error) {
	if len(externalNos) == 0 {
		return nil, nil
	}
	var orders []models.Order
	if err := r.db.
		Where("channel_id = ? AND external_order_no IN ?", channelID, externalNos).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Updates 按字段更新订单
func (r *GormOrderRepository) Updates(id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Order{}).Where("id = ?", id).Updates(updates).Error
}

// SetOutboundID 设置出库单号，至多设置一次；重复设置同一值视为幂等成功
func (r *GormOrderRepository) SetOutboundID(id uint, outboundID string) (bool, error) {
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND (outbound_id = '' OR outbound_id = ?)", id, outboundID).
		Update("outbound_id", outboundID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListAdmin 运维后台订单列表
func (r *GormOrderRepository) ListAdmin(filter OrderListFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	query := r.db.Model(&models.Order{})

	if filter.ClientID != 0 {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.ChannelID != 0 {
		query = query.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FulfillmentState != "" {
		query = query.Where("fulfillment_state = ?", filter.FulfillmentState)
	}
	if filter.OnHold != nil {
		query = query.Where("on_hold = ?", *filter.OnHold)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Preload("Items").Order("id desc").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListSyncedForPoll 获取待轮询追踪状态的已同步订单
func (r *GormOrderRepository) ListSyncedForPoll(limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.
		Where("fulfillment_state = ?", models.FulfillmentSynced).
		Where("status NOT IN ?", []string{
			models.OrderTerminalCanceled,
			models.OrderTerminalDelivered,
			models.OrderTerminalReturned,
		}).
		Order("synced_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
