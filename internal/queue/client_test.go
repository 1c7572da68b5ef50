package queue

import (
	"testing"
	"time"

	"github.com/syncbridge/internal/config"
	"github.com/syncbridge/internal/constants"
)

func TestRetryDelayExponentialAndCapped(t *testing.T) {
	delay := RetryDelay(30 * time.Second)

	prev := time.Duration(0)
	for n := 0; n < 12; n++ {
		d := delay(n, nil, nil)
		if d < prev {
			t.Fatalf("delay must be non-decreasing: n=%d got %v after %v", n, d, prev)
		}
		if d > 30*time.Minute {
			t.Fatalf("delay exceeded cap: n=%d got %v", n, d)
		}
		prev = d
	}

	if got := delay(0, nil, nil); got != 30*time.Second {
		t.Fatalf("first attempt should use base delay, got %v", got)
	}
	if got := delay(2, nil, nil); got != 2*time.Minute {
		t.Fatalf("expected base*4 on third attempt, got %v", got)
	}
	if got := delay(20, nil, nil); got != 30*time.Minute {
		t.Fatalf("deep retries must cap at 30m, got %v", got)
	}
}

func TestRetryDelayDefaultBase(t *testing.T) {
	delay := RetryDelay(0)
	if got := delay(0, nil, nil); got != 30*time.Second {
		t.Fatalf("zero base should fall back to default, got %v", got)
	}
}

func TestTaskIDFormats(t *testing.T) {
	if got := OrderFulfillmentSyncTaskID(42); got != "order_fulfillment_sync:42" {
		t.Fatalf("unexpected task id: %s", got)
	}
	if got := CommerceSyncBackTaskID(42); got != "commerce_sync_back:42" {
		t.Fatalf("unexpected task id: %s", got)
	}
	if got := ReturnRestockTaskID(7); got != "return_restock:7" {
		t.Fatalf("unexpected task id: %s", got)
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	_, cfg := BuildServerConfig(nil)
	if cfg.Concurrency != 10 {
		t.Fatalf("default concurrency should be 10, got %d", cfg.Concurrency)
	}
	if cfg.Queues[constants.QueueCritical] != 3 || cfg.Queues[constants.QueueSync] != 6 {
		t.Fatalf("unexpected queue weights: %v", cfg.Queues)
	}
	if cfg.RetryDelayFunc == nil {
		t.Fatalf("retry delay func not set")
	}
}

func TestBuildServerConfigOverrides(t *testing.T) {
	_, cfg := BuildServerConfig(&config.QueueConfig{
		Concurrency: 4,
		Queues:      map[string]int{"critical": 9, "sync": 1},
	})
	if cfg.Concurrency != 4 {
		t.Fatalf("concurrency override ignored: %d", cfg.Concurrency)
	}
	if cfg.Queues["critical"] != 9 {
		t.Fatalf("queue override ignored: %v", cfg.Queues)
	}
}

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("disabled config should produce disabled client")
	}
	if err := client.EnqueueOrderFulfillmentSync(OrderFulfillmentSyncPayload{OrderID: 1, Action: "sync"}); err != nil {
		t.Fatalf("disabled enqueue should be a no-op, got %v", err)
	}
	if err := client.Requeue("sync", TaskCommerceSyncBack, "{}"); err == nil {
		t.Fatalf("manual requeue on a disabled queue must surface an error")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
