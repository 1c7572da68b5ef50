package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syncbridge/internal/config"
	"github.com/syncbridge/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	defaultRetryLimit     = 3
	defaultRetryDelayBase = 30 * time.Second
	maxRetryDelay         = 30 * time.Minute
	defaultExpireHours    = 24
)

// Client 队列客户端封装
//
// 去重键冲突（同一实体已有待处理任务）按幂等成功处理，
// 这是挤压重复 Webhook 风暴的第一道闸门。
type Client struct {
	client     *asynq.Client
	enabled    bool
	retryLimit int
	retention  time.Duration
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	retryLimit := defaultRetryLimit
	retention := time.Duration(defaultExpireHours) * time.Hour
	if cfg != nil {
		if cfg.RetryLimit > 0 {
			retryLimit = cfg.RetryLimit
		}
		if cfg.ExpireHours > 0 {
			retention = time.Duration(cfg.ExpireHours) * time.Hour
		}
	}
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false, retryLimit: retryLimit, retention: retention}, nil
	}
	return &Client{
		client:     asynq.NewClient(buildRedisOpt(cfg)),
		enabled:    true,
		retryLimit: retryLimit,
		retention:  retention,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueOrderFulfillmentSync 推送履约同步任务（critical 队列）
func (c *Client) EnqueueOrderFulfillmentSync(payload OrderFulfillmentSyncPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewOrderFulfillmentSyncTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(constants.QueueCritical),
		asynq.TaskID(OrderFulfillmentSyncTaskID(payload.OrderID)),
	)
}

// EnqueueCommerceSyncBack 推送商城回写任务
func (c *Client) EnqueueCommerceSyncBack(payload CommerceSyncBackPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewCommerceSyncBackTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(constants.QueueSync),
		asynq.TaskID(CommerceSyncBackTaskID(payload.OrderID)),
	)
}

// EnqueueReturnRestock 推送退货回库任务
func (c *Client) EnqueueReturnRestock(payload ReturnRestockPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewReturnRestockTask(payload)
	if err != nil {
		return err
	}
	return c.enqueue(task,
		asynq.Queue(constants.QueueSync),
		asynq.TaskID(ReturnRestockTaskID(payload.ReturnID)),
	)
}

// Requeue 重投已终态失败的任务
//
// 载荷与队列取自失败记录；不带去重键，避免与已保留的
// 终态任务冲突。
func (c *Client) Requeue(queueName, taskType, payload string) error {
	if !c.Enabled() {
		return errors.New("queue disabled")
	}
	if strings.TrimSpace(queueName) == "" {
		queueName = constants.QueueSync
	}
	task := asynq.NewTask(taskType, []byte(payload))
	return c.enqueue(task, asynq.Queue(queueName))
}

func (c *Client) enqueue(task *asynq.Task, opts ...asynq.Option) error {
	options := append(opts,
		asynq.MaxRetry(c.retryLimit),
		asynq.Retention(c.retention),
	)
	_, err := c.client.Enqueue(task, options...)
	if err != nil && errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// RetryDelay 指数退避：base * 2^n，上限 30 分钟
//
// base 来自配置 retry_delay_seconds，通过闭包绑定。
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = defaultRetryDelayBase
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		delay := base
		for i := 0; i < n; i++ {
			delay *= 2
			if delay >= maxRetryDelay {
				return maxRetryDelay
			}
		}
		return delay
	}
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	retryDelayBase := defaultRetryDelayBase
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if cfg.RetryDelaySeconds > 0 {
			retryDelayBase = time.Duration(cfg.RetryDelaySeconds) * time.Second
		}
	}
	queues := map[string]int{
		constants.QueueCritical: 3,
		constants.QueueSync:     6,
	}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queues,
		RetryDelayFunc: RetryDelay(retryDelayBase),
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
