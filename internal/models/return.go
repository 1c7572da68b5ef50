package models

import (
	"time"

	"gorm.io/gorm"
)

// Return 退货表，无论由哪个系统发起，平台始终是权威主数据
type Return struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                                                        // 主键
	ClientID           uint       `gorm:"not null;index" json:"client_id"`                                             // 租户ID
	ChannelID          uint       `gorm:"not null;uniqueIndex:idx_returns_channel_external" json:"channel_id"`         // 渠道ID
	ExternalReturnNo   string     `gorm:"not null;uniqueIndex:idx_returns_channel_external" json:"external_return_no"` // 渠道退货单号
	OrderID            uint       `gorm:"not null;index" json:"order_id"`                                              // 订单ID
	Origin             string     `gorm:"type:varchar(20);not null" json:"origin"`                                     // 发起来源，创建后不可变
	Status             string     `gorm:"type:varchar(30);not null;default:'announced';index" json:"status"`           // 退货状态
	Reason             string     `gorm:"type:varchar(300)" json:"reason,omitempty"`                                   // 退货原因
	InspectionResult   string     `gorm:"type:varchar(30);not null;default:'pending'" json:"inspection_result"`        // 验收结果
	InspectionNote     string     `gorm:"type:varchar(500)" json:"inspection_note,omitempty"`                          // 验收备注
	RestockEligible    bool       `gorm:"default:false" json:"restock_eligible"`                                       // 是否可回库
	RestockedAt        *time.Time `gorm:"index" json:"restocked_at,omitempty"`                                         // 回库时间
	ReplacementOrderID *uint      `gorm:"index" json:"replacement_order_id,omitempty"`                                 // 替换订单ID
	Finalized          bool       `gorm:"default:false;index" json:"finalized"`                                        // 是否已定稿（定稿后不可变）
	FinalizedAt        *time.Time `json:"finalized_at,omitempty"`                                                      // 定稿时间

	CreatedAt time.Time      `gorm:"index" json:"created_at"` // 创建时间
	UpdatedAt time.Time      `json:"updated_at"`              // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`          // 软删除时间
}

// TableName 指定表名
func (Return) TableName() string {
	return "returns"
}
