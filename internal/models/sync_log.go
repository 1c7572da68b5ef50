package models

import (
	"time"
)

// SyncLogEntry 同步审计日志表，只追加，禁止更新与删除
type SyncLogEntry struct {
	ID            uint        `gorm:"primarykey" json:"id"`                                                    // 主键
	EntityType    string      `gorm:"type:varchar(20);not null;index:idx_sync_logs_entity" json:"entity_type"` // 实体类型
	EntityID      uint        `gorm:"not null;index:idx_sync_logs_entity" json:"entity_id"`                    // 实体ID
	Origin        string      `gorm:"type:varchar(20);not null;index" json:"origin"`                           // 变更来源
	Action        string      `gorm:"type:varchar(20);not null" json:"action"`                                 // 动作（create/update/hold/cancel）
	ChangedFields StringArray `gorm:"type:json" json:"changed_fields"`                                         // 变更字段名列表
	Before        JSON        `gorm:"type:json" json:"before,omitempty"`                                       // 变更前快照
	After         JSON        `gorm:"type:json" json:"after,omitempty"`                                        // 变更后快照
	EventID       string      `gorm:"type:varchar(64);index" json:"event_id,omitempty"`                        // 触发事件ID
	CreatedAt     time.Time   `gorm:"index" json:"created_at"`                                                 // 创建时间
}

// TableName 指定表名
func (SyncLogEntry) TableName() string {
	return "sync_logs"
}
