package repository

import (
	"errors"
	"time"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// JobFailureRepository 任务终态失败记录数据访问接口
type JobFailureRepository interface {
	Create(failure *models.SyncJobFailure) error
	GetByID(id uint) (*models.SyncJobFailure, error)
	List(filter JobFailureListFilter) ([]models.SyncJobFailure, int64, error)
	MarkRequeued(id uint) error
}

// GormJobFailureRepository GORM 实现
type GormJobFailureRepository struct {
	db *gorm.DB
}

// NewJobFailureRepository 创建失败记录仓库
func NewJobFailureRepository(db *gorm.DB) *GormJobFailureRepository {
	return &GormJobFailureRepository{db: db}
}

// Create 写入终态失败记录
func (r *GormJobFailureRepository) Create(failure *models.SyncJobFailure) error {
	return r.db.Create(failure).Error
}

// GetByID 根据 ID 获取失败记录
func (r *GormJobFailureRepository) GetByID(id uint) (*models.SyncJobFailure, error) {
	var failure models.SyncJobFailure
	if err := r.db.First(&failure, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &failure, nil
}

// List 失败记录列表
func (r *GormJobFailureRepository) List(filter JobFailureListFilter) ([]models.SyncJobFailure, int64, error) {
	var failures []models.SyncJobFailure
	query := r.db.Model(&models.SyncJobFailure{})

	if filter.Queue != "" {
		query = query.Where("queue = ?", filter.Queue)
	}
	if filter.TaskType != "" {
		query = query.Where("task_type = ?", filter.TaskType)
	}
	if filter.Requeued != nil {
		query = query.Where("requeued = ?", *filter.Requeued)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&failures).Error; err != nil {
		return nil, 0, err
	}
	return failures, total, nil
}

// MarkRequeued 标记失败记录已被人工重投
func (r *GormJobFailureRepository) MarkRequeued(id uint) error {
	now := time.Now()
	return r.db.Model(&models.SyncJobFailure{}).
		Where("id = ? AND requeued = ?", id, false).
		Updates(map[string]interface{}{
			"requeued":    true,
			"requeued_at": now,
		}).Error
}
