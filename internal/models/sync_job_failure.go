package models

import (
	"time"
)

// SyncJobFailure 重试耗尽任务的终态记录表，供运维后台排查
type SyncJobFailure struct {
	ID         uint       `gorm:"primarykey" json:"id"`                             // 主键
	Queue      string     `gorm:"type:varchar(40);not null;index" json:"queue"`     // 队列名称
	TaskType   string     `gorm:"type:varchar(80);not null;index" json:"task_type"` // 任务类型
	TaskID     string     `gorm:"type:varchar(120);index" json:"task_id"`           // 去重键（singleton key）
	Payload    string     `gorm:"type:text" json:"payload"`                         // 任务载荷
	Retries    int        `gorm:"not null;default:0" json:"retries"`                // 已重试次数
	LastError  string     `gorm:"type:text" json:"last_error"`                      // 最后一次错误
	Requeued   bool       `gorm:"default:false;index" json:"requeued"`              // 是否已人工重投
	RequeuedAt *time.Time `json:"requeued_at,omitempty"`                            // 重投时间
	FailedAt   time.Time  `gorm:"index" json:"failed_at"`                           // 失败时间
	CreatedAt  time.Time  `json:"created_at"`                                       // 创建时间
	UpdatedAt  time.Time  `json:"updated_at"`                                       // 更新时间
}

// TableName 指定表名
func (SyncJobFailure) TableName() string {
	return "sync_job_failures"
}
