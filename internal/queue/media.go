// Package queue wraps the durable job queue. Media downloads ride a kafka
// topic so the worker completes them independently of the webhook request.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MediaJob carries everything the download worker needs to finish without
// touching the original webhook.
type MediaJob struct {
	OrganizationID     string    `json:"organizationId"`
	ChatID             string    `json:"chatId"`
	ChatCreatedAt      time.Time `json:"chatCreatedAt"`
	MessageID          string    `json:"messageId"`
	MessageTimestamp   time.Time `json:"messageTimestamp"`
	AttachmentID       string    `json:"attachmentId"`
	ExternalMediaID    string    `json:"externalMediaId"`
	InstanceIdentifier string    `json:"instanceIdentifier"`
	FileName           string    `json:"fileName,omitempty"`
	MimeType           string    `json:"mimeType,omitempty"`
	DirectMediaURL     string    `json:"directMediaUrl"`
}

// MediaEnqueuer is the producer side as the processor sees it.
type MediaEnqueuer interface {
	EnqueueMediaDownload(ctx context.Context, job MediaJob) error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

func (p *Producer) EnqueueMediaDownload(ctx context.Context, job MediaJob) error {
	value, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.OrganizationID),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error { return p.writer.Close() }

// Consumer pulls media jobs for the download worker.
type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{reader: r, log: log}
}

// Run blocks, handing each decoded job to handler. Handler errors are logged
// and the message is still committed; retry is the handler's concern (the
// attachment row records the failure).
func (c *Consumer) Run(ctx context.Context, handler func(ctx context.Context, job MediaJob) error) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		var job MediaJob
		if err := json.Unmarshal(m.Value, &job); err != nil {
			c.log.Error("media job decode failed", zap.Error(err))
		} else if err := handler(ctx, job); err != nil {
			c.log.Error("media job failed",
				zap.String("org", job.OrganizationID),
				zap.String("attachment", job.AttachmentID),
				zap.Error(err))
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
