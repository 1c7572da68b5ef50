package models

import (
	"time"

	"gorm.io/gorm"
)

// Channel 销售渠道表（某租户接入的一个商城平台实例）
type Channel struct {
	ID                      uint           `gorm:"primarykey" json:"id"`                              // 主键
	ClientID                uint           `gorm:"not null;index" json:"client_id"`                   // 租户ID
	Code                    string         `gorm:"uniqueIndex;not null" json:"code"`                  // 渠道标识（Webhook 路由使用）
	Type                    string         `gorm:"type:varchar(40);not null;index" json:"type"`       // 渠道类型（shopify/woocommerce/...）
	Name                    string         `gorm:"not null" json:"name"`                              // 渠道名称
	SecretCiphertext        string         `gorm:"type:text" json:"-"`                                // 加密后的 Webhook 签名密钥
	CallbackURL             string         `gorm:"type:varchar(500)" json:"callback_url,omitempty"`   // 运营变更回写地址（可空）
	DefaultShippingMethodID *uint          `gorm:"index" json:"default_shipping_method_id,omitempty"` // 渠道级默认运输方式
	IsActive                bool           `gorm:"default:true;index" json:"is_active"`               // 是否启用
	CreatedAt               time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt               time.Time      `json:"updated_at"`                                        // 更新时间
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (Channel) TableName() string {
	return "channels"
}
