package repository

import (
	"errors"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// ChannelRepository 渠道与租户数据访问接口
type ChannelRepository interface {
	GetByID(id uint) (*models.Channel, error)
	GetByCode(code string) (*models.Channel, error)
	GetClientByID(id uint) (*models.Client, error)
}

// GormChannelRepository GORM 实现
type GormChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository 创建渠道仓库
func NewChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// GetByID 根据 ID 获取渠道
func (r *GormChannelRepository) GetByID(id uint) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetByCode 根据渠道标识获取渠道
func (r *GormChannelRepository) GetByCode(code string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.Where("code = ?", code).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetClientByID 根据 ID 获取租户
func (r *GormChannelRepository) GetClientByID(id uint) (*models.Client, error) {
	var client models.Client
	if err := r.db.First(&client, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}
