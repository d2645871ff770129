package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultImportQueue is used when no import queue name is configured
const DefaultImportQueue = "glucose_record_imports"

var recordImportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glucose_record_imports_total",
		Help: "Total number of record import messages processed",
	},
	[]string{"status"},
)

// RecordImportMessage is a reading pushed by a meter or another client.
// The date is mandatory.
type RecordImportMessage struct {
	Source string `json:"source,omitempty"`
	ports.RecordRequest
}

// RecordImportConsumer consumes record imports from RabbitMQ and stores
// them through the diary service.
type RecordImportConsumer struct {
	conn           *amqp091.Connection
	channel        *amqp091.Channel
	queueName      string
	diaryService   ports.DiaryService
	connMutex      sync.RWMutex
	reconnectCh    chan bool
	stopReconnect  chan bool
	maxRetries     int
	retryDelay     time.Duration
	consumingCtx   context.Context
	consumingMutex sync.Mutex
	isConsuming    bool
	logger         *zap.Logger
}

// NewRecordImportConsumer creates a new RabbitMQ consumer for record imports
func NewRecordImportConsumer(rabbitMQURL string, queueName string, diaryService ports.DiaryService, logger *zap.Logger) (*RecordImportConsumer, error) {
	consumer := newRecordImportConsumer(queueName, diaryService, logger)

	if err := consumer.connect(rabbitMQURL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	go consumer.handleReconnection(rabbitMQURL)

	return consumer, nil
}

func newRecordImportConsumer(queueName string, diaryService ports.DiaryService, logger *zap.Logger) *RecordImportConsumer {
	if queueName == "" {
		queueName = DefaultImportQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordImportConsumer{
		queueName:     queueName,
		diaryService:  diaryService,
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
		logger:        logger,
	}
}

func (c *RecordImportConsumer) connect(rabbitMQURL string) error {
	conn, channel, err := dialQueue(rabbitMQURL, c.queueName, c.maxRetries, c.retryDelay, c.logger)
	if err != nil {
		return err
	}

	c.connMutex.Lock()
	c.conn, c.channel = conn, channel
	c.connMutex.Unlock()

	c.logger.Info("record import consumer connected to RabbitMQ", zap.String("queue", c.queueName))
	return nil
}

// handleReconnection handles automatic reconnection to RabbitMQ
func (c *RecordImportConsumer) handleReconnection(rabbitMQURL string) {
	for {
		select {
		case <-c.reconnectCh:
			c.logger.Info("attempting to reconnect to RabbitMQ")
			c.connMutex.Lock()
			if c.conn != nil && !c.conn.IsClosed() {
				c.conn.Close()
			}
			if c.channel != nil && !c.channel.IsClosed() {
				c.channel.Close()
			}
			c.connMutex.Unlock()

			if err := c.connect(rabbitMQURL); err != nil {
				c.logger.Error("reconnection failed", zap.Error(err))
				time.Sleep(5 * time.Second)
				c.reconnectCh <- true
				continue
			}

			c.consumingMutex.Lock()
			if c.consumingCtx != nil && c.consumingCtx.Err() == nil && !c.isConsuming {
				go c.StartConsuming(c.consumingCtx)
			}
			c.consumingMutex.Unlock()
		case <-c.stopReconnect:
			return
		}
	}
}

// StartConsuming registers the consumer and processes messages in the
// background until ctx is cancelled. Only one consumer runs per instance.
func (c *RecordImportConsumer) StartConsuming(ctx context.Context) error {
	c.consumingMutex.Lock()
	if c.isConsuming {
		c.consumingMutex.Unlock()
		c.logger.Info("record import consumer already running, skipping duplicate start")
		return nil
	}
	c.isConsuming = true
	c.consumingCtx = ctx
	c.consumingMutex.Unlock()

	stopConsuming := func() {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
	}

	c.connMutex.RLock()
	channel := c.channel
	conn := c.conn
	c.connMutex.RUnlock()

	if channel == nil || channel.IsClosed() || conn == nil || conn.IsClosed() {
		stopConsuming()
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	// one unacknowledged message at a time
	if err := channel.Qos(1, 0, false); err != nil {
		stopConsuming()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	consumerTag := fmt.Sprintf("record-import-%d", time.Now().UnixNano())
	msgs, err := channel.Consume(
		c.queueName, // queue
		consumerTag, // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		stopConsuming()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("record import consumer started",
		zap.String("consumer_tag", consumerTag),
		zap.String("queue", c.queueName),
	)

	go func() {
		defer stopConsuming()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("record import consumer context cancelled")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("record import channel closed, attempting reconnection")
					c.reconnectCh <- true
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

// processMessage stores one imported record.
// Malformed or invalid records are dropped, anything else is requeued.
func (c *RecordImportConsumer) processMessage(ctx context.Context, msg amqp091.Delivery) {
	var req RecordImportMessage
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		c.logger.Warn("failed to unmarshal record import", zap.Error(err))
		c.reject(msg, "malformed", false)
		return
	}

	if req.Date == nil || req.Date.IsZero() {
		c.logger.Warn("invalid record import: date is required", zap.String("source", req.Source))
		c.reject(msg, "invalid", false)
		return
	}

	report, err := c.diaryService.CreateRecord(ctx, req.RecordRequest)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrDuplicateRecord) {
			c.logger.Warn("rejected record import", zap.String("source", req.Source), zap.Error(err))
			c.reject(msg, "invalid", false)
			return
		}
		c.logger.Error("failed to store record import", zap.String("source", req.Source), zap.Error(err))
		c.reject(msg, "failed", true)
		return
	}

	c.logger.Info("record imported",
		zap.String("record_id", report.ID.String()),
		zap.String("source", req.Source),
		zap.String("glucose_status", string(report.Assessment.Status)),
	)
	recordImportsTotal.WithLabelValues("imported").Inc()

	// ack only after the record is stored; a failed ack means redelivery
	if err := msg.Ack(false); err != nil {
		c.logger.Error("failed to acknowledge record import", zap.Error(err))
	}
}

func (c *RecordImportConsumer) reject(msg amqp091.Delivery, status string, requeue bool) {
	recordImportsTotal.WithLabelValues(status).Inc()
	if err := msg.Nack(false, requeue); err != nil {
		c.logger.Error("failed to nack record import", zap.Error(err))
	}
}

// Close closes the RabbitMQ connection and stops consuming
func (c *RecordImportConsumer) Close() error {
	close(c.stopReconnect)

	c.consumingMutex.Lock()
	c.isConsuming = false
	c.consumingMutex.Unlock()

	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing RabbitMQ channel", zap.Error(err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("error closing RabbitMQ connection", zap.Error(err))
		}
	}

	c.logger.Info("record import consumer closed")
	return nil
}
