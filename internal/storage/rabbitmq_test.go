package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
)

// newTestRabbitMQ 连接本地RabbitMQ，不可达时跳过用例。
// 这些用例需要真实代理，CI里没有broker时整组自动跳过。
func newTestRabbitMQ(t *testing.T) *storage.RabbitMQ {
	t.Helper()

	cfg, err := config.LoadConfig()
	require.NoError(t, err, "加载测试配置失败")

	q, err := storage.NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		t.Skipf("RabbitMQ不可用，跳过集成测试: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

type testEvent struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

func TestEventTopologyRoundTrip(t *testing.T) {
	q := newTestRabbitMQ(t)

	suffix := time.Now().Format("20060102150405")
	exchange := "test.events." + suffix
	queue := "test.process." + suffix
	routingKey := "test.uploaded." + suffix

	require.NoError(t, q.EnsureEventTopology(exchange, queue, routingKey), "声明消息拓扑失败")
	// 重复声明应命中本地缓存，不报错
	require.NoError(t, q.EnsureEventTopology(exchange, queue, routingKey))

	sent := testEvent{ID: "evt-001", Content: "集成测试消息", SentAt: time.Now().UTC()}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, q.PublishJSON(ctx, exchange, routingKey, sent, true), "发布消息失败")

	received := make(chan testEvent, 1)
	stop, err := q.StartConsumer(ctx, queue, 1, 1, func(_ context.Context, d amqp.Delivery) error {
		var got testEvent
		if err := json.Unmarshal(d.Body, &got); err != nil {
			return err
		}
		received <- got
		return nil
	})
	require.NoError(t, err, "启动消费者失败")
	defer stop()

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Content, got.Content)
	case <-time.After(10 * time.Second):
		t.Fatal("等待接收消息超时")
	}
}

func TestPublishWithConfirmAck(t *testing.T) {
	q := newTestRabbitMQ(t)

	suffix := time.Now().Format("20060102150405")
	exchange := "test.confirm." + suffix
	queue := "test.confirm.q." + suffix
	routingKey := "test.confirm.key"

	require.NoError(t, q.EnsureEventTopology(exchange, queue, routingKey))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	body := []byte(`{"id":"confirm-001"}`)
	err := q.PublishWithConfirm(ctx, exchange, routingKey, body, "msg-confirm-001")
	require.NoError(t, err, "等待代理确认的发布应成功")

	// 同一通道的第二次确认发布，验证确认通道可以复用
	err = q.PublishWithConfirm(ctx, exchange, routingKey, body, "msg-confirm-002")
	require.NoError(t, err)
}
