package repository

import (
	"errors"

	"github.com/syncbridge/internal/models"

	"gorm.io/gorm"
)

// SKURef 商品 SKU 与主键的轻量映射
type SKURef struct {
	ID  uint
	SKU string
}

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetByClientAndSKU(clientID uint, sku string) (*models.Product, error)
	ListByClientAndSKUs(clientID uint, skus []string) ([]models.Product, error)
	ListSKURefs(clientID uint) ([]SKURef, error)
	Updates(id uint, updates map[string]interface{}) error
	UpsertChannelLink(link *models.ProductChannelLink) error
	WithTx(tx *gorm.DB) *GormProductRepository
}

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProductRepository) WithTx(tx *gorm.DB) *GormProductRepository {
	if tx == nil {
		return r
	}
	return &GormProductRepository{db: tx}
}

// Create 创建商品
func (r *GormProductRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetByClientAndSKU 根据自然键（租户 + SKU）获取商品
func (r *GormProductRepository) GetByClientAndSKU(clientID uint, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.
		Where("client_id = ? AND sku = ?", clientID, sku).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// ListByClientAndSKUs 批量预取：按自然键列表一次性取回已存在的商品
func (r *GormProductRepository) ListByClientAndSKUs(clientID uint, skus []string) ([]models.Product, error) {
	var products []models.Product
	if len(skus) == 0 {
		return products, nil
	}
	if err := r.db.
		Where("client_id = ? AND sku IN ?", clientID, skus).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListSKURefs 取回租户全部 SKU→主键映射，供实体缓存预热
func (r *GormProductRepository) ListSKURefs(clientID uint) ([]SKURef, error) {
	var refs []SKURef
	if err := r.db.Model(&models.Product{}).
		Select("id", "sku").
		Where("client_id = ?", clientID).
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// Updates 按字段更新商品
func (r *GormProductRepository) Updates(id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error
}

// UpsertChannelLink 写入或更新商品的渠道外部ID关联
func (r *GormProductRepository) UpsertChannelLink(link *models.ProductChannelLink) error {
	var existing models.ProductChannelLink
	err := r.db.
		Where("product_id = ? AND channel_id = ?", link.ProductID, link.ChannelID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.db.Create(link).Error
		}
		return err
	}
	if existing.ExternalProductID == link.ExternalProductID {
		return nil
	}
	return r.db.Model(&existing).Update("external_product_id", link.ExternalProductID).Error
}
