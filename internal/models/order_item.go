package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderItem 订单项表，外部系统完成订单定稿后不可变
type OrderItem struct {
	ID             uint           `gorm:"primarykey" json:"id"`                                     // 主键
	OrderID        uint           `gorm:"not null;index" json:"order_id"`                           // 订单ID
	ProductID      *uint          `gorm:"index" json:"product_id,omitempty"`                        // 商品ID（按 SKU 解析）
	SKU            string         `gorm:"type:varchar(100);not null;index" json:"sku"`              // 商品 SKU
	Title          string         `gorm:"type:varchar(300)" json:"title"`                           // 行项目名称
	Quantity       int            `gorm:"not null;default:1" json:"quantity"`                       // 数量
	UnitAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"unit_amount"` // 单价
	ExternalItemID string         `gorm:"type:varchar(100)" json:"external_item_id,omitempty"`      // 渠道行项目ID
	CreatedAt      time.Time      `json:"created_at"`                                               // 创建时间
	UpdatedAt      time.Time      `json:"updated_at"`                                               // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                           // 软删除时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
