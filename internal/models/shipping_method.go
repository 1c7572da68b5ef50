package models

import (
	"time"

	"gorm.io/gorm"
)

// ShippingMethod 履约网络运输方式表
type ShippingMethod struct {
	ID         uint           `gorm:"primarykey" json:"id"`                    // 主键
	ExternalID string         `gorm:"uniqueIndex;not null" json:"external_id"` // 履约网络运输方式ID
	Name       string         `gorm:"not null" json:"name"`                    // 名称
	Carrier    string         `gorm:"type:varchar(100)" json:"carrier"`        // 承运商
	IsActive   bool           `gorm:"default:true;index" json:"is_active"`     // 是否启用
	CreatedAt  time.Time      `json:"created_at"`                              // 创建时间
	UpdatedAt  time.Time      `json:"updated_at"`                              // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                          // 软删除时间
}

// TableName 指定表名
func (ShippingMethod) TableName() string {
	return "shipping_methods"
}

// ShippingMethodMapping 渠道运输方式映射表
//
// 作用域可空性即优先级：渠道级 > 租户级 > 全局。
type ShippingMethodMapping struct {
	ID               uint           `gorm:"primarykey" json:"id"`                                // 主键
	ChannelType      string         `gorm:"type:varchar(40);not null;index" json:"channel_type"` // 渠道类型
	ClientID         *uint          `gorm:"index" json:"client_id,omitempty"`                    // 租户ID（空为全局）
	ChannelID        *uint          `gorm:"index" json:"channel_id,omitempty"`                   // 渠道ID（空为租户级/全局）
	ShippingCode     string         `gorm:"type:varchar(100);index" json:"shipping_code"`        // 渠道运输方式编码
	ShippingTitle    string         `gorm:"type:varchar(200)" json:"shipping_title"`             // 渠道运输方式名称（大小写不敏感匹配）
	ShippingMethodID uint           `gorm:"not null;index" json:"shipping_method_id"`            // 映射目标
	CreatedAt        time.Time      `json:"created_at"`                                          // 创建时间
	UpdatedAt        time.Time      `json:"updated_at"`                                          // 更新时间
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`                                      // 软删除时间

	// 关联
	ShippingMethod *ShippingMethod `gorm:"foreignKey:ShippingMethodID" json:"shipping_method,omitempty"` // 运输方式
}

// TableName 指定表名
func (ShippingMethodMapping) TableName() string {
	return "shipping_method_mappings"
}

// ShippingMethodMismatch 运输方式解析失败记录表，保留至人工解决
type ShippingMethodMismatch struct {
	ID               uint       `gorm:"primarykey" json:"id"`                           // 主键
	ClientID         uint       `gorm:"not null;index" json:"client_id"`                // 租户ID
	ChannelID        uint       `gorm:"not null;index" json:"channel_id"`               // 渠道ID
	OrderID          *uint      `gorm:"index" json:"order_id,omitempty"`                // 触发订单ID
	ChannelType      string     `gorm:"type:varchar(40)" json:"channel_type"`           // 渠道类型
	ShippingCode     string     `gorm:"type:varchar(100)" json:"shipping_code"`         // 未匹配的编码
	ShippingTitle    string     `gorm:"type:varchar(200)" json:"shipping_title"`        // 未匹配的名称
	Resolved         bool       `gorm:"default:false;index" json:"resolved"`            // 是否已人工解决
	ShippingMethodID *uint      `gorm:"index" json:"shipping_method_id,omitempty"`      // 人工指定的运输方式
	ResolvedBy       string     `gorm:"type:varchar(100)" json:"resolved_by,omitempty"` // 处理人
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`                          // 处理时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt        time.Time  `json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (ShippingMethodMismatch) TableName() string {
	return "shipping_method_mismatches"
}
