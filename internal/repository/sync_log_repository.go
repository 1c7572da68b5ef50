package repository

import (
	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// SyncLogRepository 同步审计日志数据访问接口，只追加
type SyncLogRepository interface {
	Append(entry *models.SyncLogEntry) error
	List(filter SyncLogListFilter) ([]models.SyncLogEntry, int64, error)
	WithTx(tx *gorm.DB) *GormSyncLogRepository
}

// GormSyncLogRepository GORM 实现
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewSyncLogRepository 创建同步日志仓库
func NewSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSyncLogRepository) WithTx(tx *gorm.DB) *GormSyncLogRepository {
	if tx == nil {
		return r
	}
	return &GormSyncLogRepository{db: tx}
}

// Append 追加一条审计日志
func (r *GormSyncLogRepository) Append(entry *models.SyncLogEntry) error {
	return r.db.Create(entry).Error
}

// List 查询审计日志
func (r *GormSyncLogRepository) List(filter SyncLogListFilter) ([]models.SyncLogEntry, int64, error) {
	var entries []models.SyncLogEntry
	query := r.db.Model(&models.SyncLogEntry{})

	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Origin != "" {
		query = query.Where("origin = ?", filter.Origin)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
