package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品表，SKU 为租户内自然键
type Product struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                          // 主键
	ClientID    uint           `gorm:"not null;uniqueIndex:idx_products_client_sku" json:"client_id"` // 租户ID
	SKU         string         `gorm:"not null;uniqueIndex:idx_products_client_sku" json:"sku"`       // 商品 SKU
	Title       string         `gorm:"type:varchar(300);not null" json:"title"`                       // 商品名称
	Description string         `gorm:"type:text" json:"description,omitempty"`                        // 商品描述
	Barcode     string         `gorm:"type:varchar(100);index" json:"barcode,omitempty"`              // 条码
	WeightGrams int            `gorm:"default:0" json:"weight_grams"`                                 // 重量（克）
	PriceAmount Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price_amount"`     // 价格
	IsActive    bool           `gorm:"default:true;index" json:"is_active"`                           // 是否启用
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt   time.Time      `json:"updated_at"`                                                    // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间

	// 关联
	ChannelLinks []ProductChannelLink `gorm:"foreignKey:ProductID" json:"channel_links,omitempty"` // 渠道外部ID关联
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}

// ProductChannelLink 商品与渠道外部ID的关联表
type ProductChannelLink struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                             // 主键
	ProductID         uint      `gorm:"not null;uniqueIndex:idx_product_links_channel" json:"product_id"` // 商品ID
	ChannelID         uint      `gorm:"not null;uniqueIndex:idx_product_links_channel" json:"channel_id"` // 渠道ID
	ExternalProductID string    `gorm:"type:varchar(100);not null;index" json:"external_product_id"`      // 渠道商品ID
	CreatedAt         time.Time `json:"created_at"`                                                       // 创建时间
	UpdatedAt         time.Time `json:"updated_at"`                                                       // 更新时间
}

// TableName 指定表名
func (ProductChannelLink) TableName() string {
	return "product_channel_links"
}
