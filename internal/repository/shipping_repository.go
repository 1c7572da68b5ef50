package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// ShippingRepository 运输方式、映射与失配记录数据访问接口
type ShippingRepository interface {
	GetMethodByID(id uint) (*models.ShippingMethod, error)
	GetMethodByExternalID(externalID string) (*models.ShippingMethod, error)
	FindChannelMapping(channelType string, channelID uint, code, title string) (*models.ShippingMethodMapping, error)
	FindClientMapping(channelType string, clientID uint, code, title string) (*models.ShippingMethodMapping, error)
	FindGlobalMapping(channelType string, code, title string) (*models.ShippingMethodMapping, error)
	CreateMapping(mapping *models.ShippingMethodMapping) error
	CreateMismatch(mismatch *models.ShippingMethodMismatch) error
	GetMismatchByID(id uint) (*models.ShippingMethodMismatch, error)
	HasUnresolvedMismatch(channelID uint, code, title string) (bool, error)
	ListMismatches(filter MismatchListFilter) ([]models.ShippingMethodMismatch, int64, error)
	ResolveMismatch(id uint, shippingMethodID uint, resolvedBy string) error
}

// GormShippingRepository GORM 实现
type GormShippingRepository struct {
	db *gorm.DB
}

// NewShippingRepository 创建运输方式仓库
func NewShippingRepository(db *gorm.DB) *GormShippingRepository {
	return &GormShippingRepository{db: db}
}

// GetMethodByID 根据 ID 获取运输方式
func (r *GormShippingRepository) GetMethodByID(id uint) (*models.ShippingMethod, error) {
	var method models.ShippingMethod
	if err := r.db.First(&method, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

// GetMethodByExternalID 根据履约网络ID获取运输方式
func (r *GormShippingRepository) GetMethodByExternalID(externalID string) (*models.ShippingMethod, error) {
	var method models.ShippingMethod
	if err := r.db.Where("external_id = ?", externalID).First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

// FindChannelMapping 渠道级映射：编码精确匹配或名称大小写不敏感匹配
func (r *GormShippingRepository) FindChannelMapping(channelType string, channelID uint, code, title string) (*models.ShippingMethodMapping, error) {
	query := r.db.Preload("ShippingMethod").
		Where("channel_type = ? AND channel_id = ?", channelType, channelID)
	return r.findMapping(query, code, title)
}

// FindClientMapping 租户级映射（channel_id 为空）
func (r *GormShippingRepository) FindClientMapping(channelType string, clientID uint, code, title string) (*models.ShippingMethodMapping, error) {
	query := r.db.Preload("ShippingMethod").
		Where("channel_type = ? AND client_id = ? AND channel_id IS NULL", channelType, clientID)
	return r.findMapping(query, code, title)
}

// FindGlobalMapping 全局映射（client_id 与 channel_id 均为空）
func (r *GormShippingRepository) FindGlobalMapping(channelType string, code, title string) (*models.ShippingMethodMapping, error) {
	query := r.db.Preload("ShippingMethod").
		Where("channel_type = ? AND client_id IS NULL AND channel_id IS NULL", channelType)
	return r.findMapping(query, code, title)
}

func (r *GormShippingRepository) findMapping(query *gorm.DB, code, title string) (*models.ShippingMethodMapping, error) {
	code = strings.TrimSpace(code)
	title = strings.TrimSpace(title)
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if code != "" {
		conditions = append(conditions, "shipping_code = ?")
		args = append(args, code)
	}
	if title != "" {
		conditions = append(conditions, "LOWER(shipping_title) = ?")
		args = append(args, strings.ToLower(title))
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	var mapping models.ShippingMethodMapping
	if err := query.
		Where(strings.Join(conditions, " OR "), args...).
		Order("shipping_code desc"). // 编码匹配优先于名称匹配
		First(&mapping).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// CreateMapping 写入运输方式映射
func (r *GormShippingRepository) CreateMapping(mapping *models.ShippingMethodMapping) error {
	return r.db.Create(mapping).Error
}

// CreateMismatch 写入失配记录
func (r *GormShippingRepository) CreateMismatch(mismatch *models.ShippingMethodMismatch) error {
	return r.db.Create(mismatch).Error
}

// GetMismatchByID 根据 ID 获取失配记录
func (r *GormShippingRepository) GetMismatchByID(id uint) (*models.ShippingMethodMismatch, error) {
	var mismatch models.ShippingMethodMismatch
	if err := r.db.First(&mismatch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mismatch, nil
}

// HasUnresolvedMismatch 判断同一渠道同一运输选择是否已有未解决的失配记录
func (r *GormShippingRepository) HasUnresolvedMismatch(channelID uint, code, title string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.ShippingMethodMismatch{}).
		Where("channel_id = ? AND shipping_code = ? AND shipping_title = ? AND resolved = ?",
			channelID, code, title, false).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMismatches 失配记录列表
func (r *GormShippingRepository) ListMismatches(filter MismatchListFilter) ([]models.ShippingMethodMismatch, int64, error) {
	var mismatches []models.ShippingMethodMismatch
	query := r.db.Model(&models.ShippingMethodMismatch{})

	if filter.ClientID != 0 {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if err := query.Order("id desc").Find(&mismatches).Error; err != nil {
		return nil, 0, err
	}
	return mismatches, total, nil
}

// ResolveMismatch 人工解决失配记录
func (r *GormShippingRepository) ResolveMismatch(id uint, shippingMethodID uint, resolvedBy string) error {
	now := time.Now()
	return r.db.Model(&models.ShippingMethodMismatch{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":           true,
			"shipping_method_id": shippingMethodID,
			"resolved_by":        resolvedBy,
			"resolved_at":        now,
		}).Error
}
