package repository

import (
	"errors"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// ReturnRepository 退货数据访问接口
type ReturnRepository interface {
	Create(ret *models.Return) error
	GetByID(id uint) (*models.Return, error)
	GetByChannelAndExternalNo(channelID uint, externalReturnNo string) (*models.Return, error)
	Updates(id uint, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormReturnRepository
}

// GormReturnRepository GORM 实现
type GormReturnRepository struct {
	db *gorm.DB
}

// NewReturnRepository 创建退货仓库
func NewReturnRepository(db *gorm.DB) *GormReturnRepository {
	return &GormReturnRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReturnRepository) WithTx(tx *gorm.DB) *GormReturnRepository {
	if tx == nil {
		return r
	}
	return &GormReturnRepository{db: tx}
}

// Create 创建退货记录
func (r *GormReturnRepository) Create(ret *models.Return) error {
	return r.db.Create(ret).Error
}

// GetByID 根据 ID 获取退货记录
func (r *GormReturnRepository) GetByID(id uint) (*models.Return, error) {
	var ret models.Return
	if err := r.db.First(&ret, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ret, nil
}

// GetByChannelAndExternalNo 根据自然键（渠道 + 渠道退货单号）获取退货记录
func (r *GormReturnRepository) GetByChannelAndExternalNo(channelID uint, externalReturnNo string) (*models.Return, error) {
	var ret models.Return
	if err := r.db.
		Where("channel_id = ? AND external_return_no = ?", channelID, externalReturnNo).
		First(&ret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ret, nil
}

// Updates 按字段更新退货记录
func (r *GormReturnRepository) Updates(id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Return{}).Where("id = ?", id).Updates(updates).Error
}
