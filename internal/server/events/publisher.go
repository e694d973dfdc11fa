package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"assetpipe/internal/config"
	"assetpipe/internal/logger"
)

// AssetUploaded 上传确认成功后投递给下游（缩略图、水印、元数据入库）
type AssetUploaded struct {
	ID          string    `json:"id"`
	Purpose     string    `json:"purpose"`
	ObjectKey   string    `json:"object_key"`
	ContextID   string    `json:"context_id,omitempty"`
	FileName    string    `json:"file_name"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type Publisher interface {
	PublishAssetUploaded(ctx context.Context, evt AssetUploaded) error
	Close() error
}

// Nop 未配置消息队列时使用
type Nop struct{}

func (Nop) PublishAssetUploaded(ctx context.Context, evt AssetUploaded) error { return nil }
func (Nop) Close() error                                                      { return nil }

var ErrPublisherClosed = errors.New("publisher_closed")

type AMQPPublisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
	closed     bool
}

// NewPublisher URL 为空时返回 Nop
func NewPublisher(cfg config.Broker) (Publisher, error) {
	url := cfg.URLOrEnv()
	if url == "" {
		return Nop{}, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	exchange := cfg.ExchangeOrDefault()
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	logger.Info().Str("exchange", exchange).Msg("events: amqp publisher ready")
	return &AMQPPublisher{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		routingKey: cfg.RoutingKeyOrDefault(),
	}, nil
}

func (p *AMQPPublisher) PublishAssetUploaded(ctx context.Context, evt AssetUploaded) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.UploadedAt,
		Type:         strings.ReplaceAll(p.routingKey, ".", "_"),
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(p.ch.Close(), p.conn.Close())
}
