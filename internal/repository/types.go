package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page             int
	PageSize         int
	ClientID         uint
	ChannelID        uint
	Status           string
	FulfillmentState string
	OnHold           *bool
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// MismatchListFilter 查询运输方式失配记录的过滤条件
type MismatchListFilter struct {
	Page     int
	PageSize int
	ClientID uint
	Resolved *bool
}

// JobFailureListFilter 查询任务终态失败记录的过滤条件
type JobFailureListFilter struct {
	Page     int
	PageSize int
	Queue    string
	TaskType string
	Requeued *bool
}

// SyncLogListFilter 查询同步日志的过滤条件
type SyncLogListFilter struct {
	Page       int
	PageSize   int
	EntityType string
	EntityID   uint
	Origin     string
}
