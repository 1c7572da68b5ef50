package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/syncbridge/internal/batch"
	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/config"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/repository"
	"github.com/syncbridge/internal/shipping"
)

// 批量导入工具
//
// -kind products（默认）时输入为商品 JSON 数组：
//
//	[{"sku": "TSHIRT-M", "title": "T-Shirt M", "price_amount": "19.90"}, ...]
//
// -kind orders 时输入为订单 JSON 数组（历史订单回填），元素结构
// 与批量引擎的订单输入一致，此时 -channel 必填。
func main() {
	var (
		filePath  string
		kind      string
		clientID  uint
		channelID uint
	)
	flag.StringVar(&filePath, "file", "", "JSON 文件路径")
	flag.StringVar(&kind, "kind", "products", "导入类型：products 或 orders")
	flag.UintVar(&clientID, "client", 0, "租户ID（products 必填）")
	flag.UintVar(&channelID, "channel", 0, "渠道ID（orders 必填，products 可选）")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if filePath == "" {
		stdLog.Fatalf("用法: import -file data.json -kind products -client 1 [-channel 2]")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		stdLog.Fatalf("读取文件失败: %v", err)
	}

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	channelRepo := repository.NewChannelRepository(models.DB)
	resolver := shipping.NewResolver(repository.NewShippingRepository(models.DB), channelRepo)
	engine := batch.NewEngine(
		models.DB,
		repository.NewProductRepository(models.DB),
		repository.NewOrderRepository(models.DB),
		resolver,
		batch.Options{
			ProductChunkSize: cfg.Sync.ProductChunkSize,
			OrderChunkSize:   cfg.Sync.OrderChunkSize,
			ChunkTimeout:     time.Duration(cfg.Sync.ChunkTimeoutSeconds) * time.Second,
		},
	)

	start := time.Now()
	var summary *batch.Summary

	switch kind {
	case "products":
		summary, err = importProducts(engine, data, clientID, channelID)
	case "orders":
		summary, err = importOrders(engine, channelRepo, data, clientID, channelID)
	default:
		stdLog.Fatalf("未知导入类型: %s", kind)
	}
	if err != nil {
		stdLog.Fatalf("导入失败: %v", err)
	}

	stdLog.Printf("导入完成: total=%d inserted=%d updated=%d skipped=%d failed=%d elapsed=%s",
		summary.Total, summary.Inserted, summary.Updated, summary.Skipped, summary.Failed,
		time.Since(start).Round(time.Millisecond))
	for _, result := range summary.Results {
		if result.Outcome == batch.ItemFailed {
			stdLog.Printf("失败条目 #%d key=%s: %s", result.Index, result.Key, result.Reason)
		}
	}
}

func importProducts(engine *batch.Engine, data []byte, clientID, channelID uint) (*batch.Summary, error) {
	if clientID == 0 {
		return nil, fmt.Errorf("products 导入必须指定 -client")
	}
	var inputs []batch.ProductInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("文件中没有商品")
	}
	return engine.UpsertProducts(context.Background(), clientID, channelID, inputs, cache.NewSKUCache(clientID))
}

func importOrders(engine *batch.Engine, channelRepo repository.ChannelRepository, data []byte, clientID, channelID uint) (*batch.Summary, error) {
	if channelID == 0 {
		return nil, fmt.Errorf("orders 导入必须指定 -channel")
	}
	channel, err := channelRepo.GetByID(channelID)
	if err != nil {
		return nil, fmt.Errorf("读取渠道失败: %w", err)
	}
	if channel == nil {
		return nil, fmt.Errorf("渠道不存在: %d", channelID)
	}
	if clientID != 0 && channel.ClientID != clientID {
		return nil, fmt.Errorf("渠道 %d 不属于租户 %d", channelID, clientID)
	}
	var inputs []batch.OrderInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("解析 JSON 失败: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("文件中没有订单")
	}
	return engine.UpsertOrders(context.Background(), channel, inputs, cache.NewSKUCache(channel.ClientID))
}
