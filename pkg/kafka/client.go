// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"jurisai-go/internal/config"
	"jurisai-go/pkg/log"
	"jurisai-go/pkg/tasks"
)

const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.CaseIndexTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者，刷新未发送的消息。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// Publisher 将索引任务投递到 Kafka。
type Publisher struct{}

// Publish 实现了 service.CaseIndexPublisher。
func (Publisher) Publish(ctx context.Context, task tasks.CaseIndexTask) error {
	return ProduceCaseTask(ctx, task)
}

// ProduceCaseTask 发送一个案件索引任务到 Kafka。
func ProduceCaseTask(ctx context.Context, task tasks.CaseIndexTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialised")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// StartConsumer 启动一个 Kafka 消费者来处理索引任务，直到 ctx 结束。
// 消费组 reader 不会重新投递未提交的消息，因此失败的任务在本地重试，之后总是提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		var task tasks.CaseIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := processWithRetry(ctx, processor, task); err != nil {
			if ctx.Err() != nil {
				// 停机中断的任务不提交，重启后重新消费
				break
			}
			log.Errorf("索引任务多次失败(>=%d)，放弃: case=%s, op=%s, Error: %v", maxAttempts, task.CaseID, task.Op, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

// retryBackoff 是第一次重试前的等待时间，之后按次数线性增长。
var retryBackoff = time.Second

// processWithRetry 最多执行 maxAttempts 次，返回最后一次的错误。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.CaseIndexTask) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = processor.Process(ctx, task); err == nil {
			return nil
		}
		log.Warnw("[Kafka] 处理索引任务失败", "case", task.CaseID, "op", task.Op, "attempt", attempt, "error", err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}
