package provider

import (
	"time"

	"github.com/syncbridge/internal/batch"
	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/commerce"
	"github.com/syncbridge/internal/config"
	"github.com/syncbridge/internal/fulfillment"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/notify"
	"github.com/syncbridge/internal/queue"
	"github.com/syncbridge/internal/repository"
	"github.com/syncbridge/internal/shipping"
	"github.com/syncbridge/internal/syncer"
	"github.com/syncbridge/internal/vault"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Vault       *vault.Vault

	// Repositories
	OrderRepo      repository.OrderRepository
	ReturnRepo     repository.ReturnRepository
	ProductRepo    repository.ProductRepository
	ChannelRepo    repository.ChannelRepository
	ShippingRepo   repository.ShippingRepository
	SyncLogRepo    repository.SyncLogRepository
	JobFailureRepo repository.JobFailureRepository

	// Services
	Resolver     *shipping.Resolver
	Orchestrator *syncer.Orchestrator
	BatchEngine  *batch.Engine
	Network      fulfillment.Network
	Adapter      *fulfillment.Adapter
	Pusher       commerce.Pusher
	Notifier     notify.Notifier
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	// 初始化密钥保管器
	var secretVault *vault.Vault
	if cfg.Vault.MasterKey != "" {
		v, err := vault.New(cfg.Vault.MasterKey)
		if err != nil {
			logger.Errorw("provider_init_vault_failed", "error", err)
		} else {
			secretVault = v
		}
	} else {
		logger.Warnw("provider_vault_master_key_missing",
			"effect", "webhook_signature_verification_disabled")
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Vault:       secretVault,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ReturnRepo = repository.NewReturnRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.ChannelRepo = repository.NewChannelRepository(db)
	c.ShippingRepo = repository.NewShippingRepository(db)
	c.SyncLogRepo = repository.NewSyncLogRepository(db)
	c.JobFailureRepo = repository.NewJobFailureRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config
	fulfillmentTimeout := time.Duration(cfg.Fulfillment.TimeoutSeconds) * time.Second

	c.Notifier = notify.NewLogNotifier()
	c.Resolver = shipping.NewResolver(c.ShippingRepo, c.ChannelRepo)
	c.Resolver.SetNotifier(c.Notifier)
	c.Pusher = commerce.NewHTTPPusher(c.Vault, fulfillmentTimeout)
	c.BatchEngine = batch.NewEngine(models.DB, c.ProductRepo, c.OrderRepo, c.Resolver, batch.Options{
		ProductChunkSize: cfg.Sync.ProductChunkSize,
		OrderChunkSize:   cfg.Sync.OrderChunkSize,
		ChunkTimeout:     time.Duration(cfg.Sync.ChunkTimeoutSeconds) * time.Second,
	})
	c.BatchEngine.SetNotifier(c.Notifier)
	c.Orchestrator = syncer.NewOrchestrator(
		models.DB,
		c.OrderRepo,
		c.ReturnRepo,
		c.ProductRepo,
		c.ChannelRepo,
		c.SyncLogRepo,
		c.Resolver,
		c.QueueClient,
	)
	c.Orchestrator.SetNotifier(c.Notifier)

	if cfg.Fulfillment.BaseURL != "" {
		network, err := fulfillment.NewHTTPNetwork(cfg.Fulfillment.BaseURL, cfg.Fulfillment.APIKey, fulfillmentTimeout)
		if err != nil {
			logger.Errorw("provider_init_fulfillment_network_failed", "error", err)
		} else {
			c.Network = network
		}
	} else {
		logger.Warnw("provider_fulfillment_base_url_missing",
			"effect", "outbound_sync_disabled")
	}
	if c.Network != nil {
		c.Adapter = fulfillment.NewAdapter(models.DB, c.Network, c.OrderRepo, c.ShippingRepo, c.SyncLogRepo, c.QueueClient)
		c.Orchestrator.SetCanceler(c.Adapter)
	}
}
