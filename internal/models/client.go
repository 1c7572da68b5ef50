package models

import (
	"time"

	"gorm.io/gorm"
)

// Client 租户（客户）表
type Client struct {
	ID                      uint           `gorm:"primarykey" json:"id"`                              // 主键
	Code                    string         `gorm:"uniqueIndex;not null" json:"code"`                  // 租户标识
	Name                    string         `gorm:"not null" json:"name"`                              // 租户名称
	DefaultShippingMethodID *uint          `gorm:"index" json:"default_shipping_method_id,omitempty"` // 租户级默认运输方式
	IsActive                bool           `gorm:"default:true;index" json:"is_active"`               // 是否启用
	CreatedAt               time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt               time.Time      `json:"updated_at"`                                        // 更新时间
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间

	// 关联
	Channels []Channel `gorm:"foreignKey:ClientID" json:"channels,omitempty"` // 渠道列表
}

// TableName 指定表名
func (Client) TableName() string {
	return "clients"
}
