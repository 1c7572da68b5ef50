package batch

import (
	"context"
	"strings"
	"time"

	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/notify"
	"github.com/syncbridge/internal/repository"
	"github.com/syncbridge/internal/shipping"

	"gorm.io/gorm"
)

const (
	defaultProductChunkSize = 100
	defaultOrderChunkSize   = 20
	defaultChunkTimeout     = 30 * time.Second
)

// 单条结果常量
const (
	ItemInserted = "inserted"
	ItemUpdated  = "updated"
	ItemSkipped  = "skipped"
	ItemFailed   = "failed"
)

// ItemResult 批量写入的单条结果
type ItemResult struct {
	Index   int    `json:"index"`            // 输入序号
	Key     string `json:"key"`              // 自然键（SKU 或渠道单号）
	Outcome string `json:"outcome"`          // inserted / updated / skipped / failed
	Reason  string `json:"reason,omitempty"` // 失败或跳过原因
}

// Summary 批量写入汇总
type Summary struct {
	Total    int          `json:"total"`
	Inserted int          `json:"inserted"`
	Updated  int          `json:"updated"`
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
	Results  []ItemResult `json:"results"`
}

func (s *Summary) add(result ItemResult) {
	s.Total++
	switch result.Outcome {
	case ItemInserted:
		s.Inserted++
	case ItemUpdated:
		s.Updated++
	case ItemSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Results = append(s.Results, result)
}

// ProductInput 商品批量导入输入
type ProductInput struct {
	SKU               string       `json:"sku"`
	Title             string       `json:"title"`
	Description       string       `json:"description,omitempty"`
	Barcode           string       `json:"barcode,omitempty"`
	WeightGrams       int          `json:"weight_grams,omitempty"`
	PriceAmount       models.Money `json:"price_amount"`
	IsActive          *bool        `json:"is_active,omitempty"`
	ExternalProductID string       `json:"external_product_id,omitempty"` // 渠道商品ID（可选）
}

// Options 批量引擎调优参数
type Options struct {
	ProductChunkSize int
	OrderChunkSize   int
	ChunkTimeout     time.Duration
}

// Engine 批量写入引擎
//
// 输入按固定大小分块，每块一个带超时的事务：块内任何数据库
// 错误回滚整块，单条校验失败只标记该条失败、不拖垮所在块。
// 块与块之间互不影响，已提交的块不因后续块失败而回滚。
type Engine struct {
	db               *gorm.DB
	productRepo      repository.ProductRepository
	orderRepo        repository.OrderRepository
	resolver         *shipping.Resolver
	notifier         notify.Notifier
	productChunkSize int
	orderChunkSize   int
	chunkTimeout     time.Duration
}

// NewEngine 创建批量写入引擎
//
// resolver 可为 nil；传入时新建订单会在入库前预解析运输方式。
func NewEngine(db *gorm.DB, productRepo repository.ProductRepository, orderRepo repository.OrderRepository, resolver *shipping.Resolver, options Options) *Engine {
	engine := &Engine{
		db:               db,
		productRepo:      productRepo,
		orderRepo:        orderRepo,
		resolver:         resolver,
		productChunkSize: options.ProductChunkSize,
		orderChunkSize:   options.OrderChunkSize,
		chunkTimeout:     options.ChunkTimeout,
	}
	if engine.productChunkSize <= 0 {
		engine.productChunkSize = defaultProductChunkSize
	}
	if engine.orderChunkSize <= 0 {
		engine.orderChunkSize = defaultOrderChunkSize
	}
	if engine.chunkTimeout <= 0 {
		engine.chunkTimeout = defaultChunkTimeout
	}
	return engine
}

// SetNotifier 注入告警通知器（构造后装配，可选）
func (e *Engine) SetNotifier(notifier notify.Notifier) {
	e.notifier = notifier
}

// OrderChunkSize 订单类批量处理的块大小
func (e *Engine) OrderChunkSize() int {
	return e.orderChunkSize
}

// UpsertProducts 批量写入商品
//
// channelID 非 0 时同时维护商品的渠道外部ID关联。skuCache 可为
// nil；传入时新建的商品会增量写入缓存，避免后续行项目关联点查。
func (e *Engine) UpsertProducts(ctx context.Context, clientID, channelID uint, inputs []ProductInput, skuCache *cache.SKUCache) (*Summary, error) {
	summary := &Summary{}
	if len(inputs) == 0 {
		return summary, nil
	}

	for start := 0; start < len(inputs); start += e.productChunkSize {
		end := start + e.productChunkSize
		if end > len(inputs) {
			end = len(inputs)
		}
		if err := e.upsertProductChunk(ctx, clientID, channelID, inputs[start:end], start, skuCache, summary); err != nil {
			// 整块回滚：块内每条都标记失败，继续处理后续块
			for i := start; i < end; i++ {
				summary.add(ItemResult{
					Index:   i,
					Key:     strings.TrimSpace(inputs[i].SKU),
					Outcome: ItemFailed,
					Reason:  err.Error(),
				})
			}
			logger.Errorw("batch_product_chunk_failed",
				"client_id", clientID,
				"chunk_start", start,
				"chunk_size", end-start,
				"error", err)
		}
	}
	return summary, nil
}

func (e *Engine) upsertProductChunk(ctx context.Context, clientID, channelID uint, chunk []ProductInput, offset int, skuCache *cache.SKUCache, summary *Summary) error {
	chunkCtx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
	defer cancel()

	skus := make([]string, 0, len(chunk))
	for _, input := range chunk {
		if sku := strings.TrimSpace(input.SKU); sku != "" {
			skus = append(skus, sku)
		}
	}

	// 结果先攒在块内缓冲，事务提交后才并入汇总，回滚时不留下半截记录
	results := make([]ItemResult, 0, len(chunk))

	err := e.db.WithContext(chunkCtx).Transaction(func(tx *gorm.DB) error {
		txRepo := e.productRepo.WithTx(tx)

		existing, err := txRepo.ListByClientAndSKUs(clientID, skus)
		if err != nil {
			return err
		}
		bySKU := make(map[string]*models.Product, len(existing))
		for i := range existing {
			bySKU[strings.ToUpper(existing[i].SKU)] = &existing[i]
		}

		for i, input := range chunk {
			index := offset + i
			sku := strings.TrimSpace(input.SKU)
			if sku == "" {
				results = append(results, ItemResult{Index: index, Outcome: ItemFailed, Reason: "sku is empty"})
				continue
			}
			if strings.TrimSpace(input.Title) == "" {
				results = append(results, ItemResult{Index: index, Key: sku, Outcome: ItemFailed, Reason: "title is empty"})
				continue
			}

			current := bySKU[strings.ToUpper(sku)]
			if current == nil {
				product := &models.Product{
					ClientID:    clientID,
					SKU:         sku,
					Title:       strings.TrimSpace(input.Title),
					Description: input.Description,
					Barcode:     input.Barcode,
					WeightGrams: input.WeightGrams,
					PriceAmount: input.PriceAmount,
					IsActive:    input.IsActive == nil || *input.IsActive,
				}
				if err := txRepo.Create(product); err != nil {
					return err
				}
				bySKU[strings.ToUpper(sku)] = product
				if skuCache != nil {
					skuCache.Put(sku, product.ID)
				}
				if err := e.linkChannel(txRepo, product.ID, channelID, input.ExternalProductID); err != nil {
					return err
				}
				results = append(results, ItemResult{Index: index, Key: sku, Outcome: ItemInserted})
				continue
			}

			updates := productUpdates(current, input)
			if err := e.linkChannel(txRepo, current.ID, channelID, input.ExternalProductID); err != nil {
				return err
			}
			if len(updates) == 0 {
				results = append(results, ItemResult{Index: index, Key: sku, Outcome: ItemSkipped})
				continue
			}
			if err := txRepo.Updates(current.ID, updates); err != nil {
				return err
			}
			results = append(results, ItemResult{Index: index, Key: sku, Outcome: ItemUpdated})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, result := range results {
		summary.add(result)
	}
	return nil
}

func (e *Engine) linkChannel(txRepo *repository.GormProductRepository, productID, channelID uint, externalProductID string) error {
	externalProductID = strings.TrimSpace(externalProductID)
	if channelID == 0 || externalProductID == "" {
		return nil
	}
	return txRepo.UpsertChannelLink(&models.ProductChannelLink{
		ProductID:         productID,
		ChannelID:         channelID,
		ExternalProductID: externalProductID,
	})
}

func productUpdates(current *models.Product, input ProductInput) map[string]interface{} {
	updates := make(map[string]interface{})
	if title := strings.TrimSpace(input.Title); title != "" && title != current.Title {
		updates["title"] = title
	}
	if input.Description != "" && input.Description != current.Description {
		updates["description"] = input.Description
	}
	if input.Barcode != "" && input.Barcode != current.Barcode {
		updates["barcode"] = input.Barcode
	}
	if input.WeightGrams > 0 && input.WeightGrams != current.WeightGrams {
		updates["weight_grams"] = input.WeightGrams
	}
	if !input.PriceAmount.IsZero() && !current.PriceAmount.Equal(input.PriceAmount.Decimal) {
		updates["price_amount"] = input.PriceAmount
	}
	if input.IsActive != nil && *input.IsActive != current.IsActive {
		updates["is_active"] = *input.IsActive
	}
	return updates
}
