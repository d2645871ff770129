package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultAlertsQueue is used when no alerts queue name is configured
const DefaultAlertsQueue = "glucose_alerts"

var alertsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glucose_alerts_published_total",
		Help: "Total number of high glucose alerts published to RabbitMQ",
	},
	[]string{"status"},
)

// RabbitMQPublisher implements AlertPublisher for publishing alerts to RabbitMQ
// Includes retry logic and circuit breaker for resilience
type RabbitMQPublisher struct {
	conn          *amqp091.Connection
	channel       *amqp091.Channel
	queueName     string
	cb            *gobreaker.CircuitBreaker
	maxRetries    int
	retryDelay    time.Duration
	connMutex     sync.RWMutex
	reconnectCh   chan bool
	stopReconnect chan bool
	logger        *zap.Logger
}

// GlucoseAlertEvent is the message published for a high reading
type GlucoseAlertEvent struct {
	EventID    uuid.UUID            `json:"event_id"`
	RecordID   uuid.UUID            `json:"record_id"`
	RecordDate time.Time            `json:"record_date"`
	SugarLevel float64              `json:"sugar_level"`
	Status     domain.GlucoseStatus `json:"status"`
	Rule       domain.GlucoseRule   `json:"rule"`
	Threshold  float64              `json:"threshold"`
	Excess     float64              `json:"excess"`
	AlertType  string               `json:"alert_type"`
	Severity   string               `json:"severity"`
	Timestamp  time.Time            `json:"timestamp"`
}

// buildAlertEvent derives the alert payload from a classified record
func buildAlertEvent(record domain.Record, assessment domain.GlucoseAssessment, now time.Time) GlucoseAlertEvent {
	var sugar float64
	if record.SugarLevel != nil {
		sugar = *record.SugarLevel
	}

	alertType := "high_glucose"
	switch assessment.Rule {
	case domain.RuleFasting:
		alertType = "high_fasting_glucose"
	case domain.RulePostMealOneHour, domain.RulePostMealTwoHour, domain.RulePostMealLate:
		alertType = "high_post_meal_glucose"
	}

	excess := sugar - assessment.Threshold
	severity := "warning"
	if excess >= 2.0 {
		severity = "critical"
	}

	return GlucoseAlertEvent{
		EventID:    uuid.New(),
		RecordID:   record.ID,
		RecordDate: record.Date,
		SugarLevel: sugar,
		Status:     assessment.Status,
		Rule:       assessment.Rule,
		Threshold:  assessment.Threshold,
		Excess:     excess,
		AlertType:  alertType,
		Severity:   severity,
		Timestamp:  now,
	}
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher with circuit breaker
func NewRabbitMQPublisher(rabbitMQURL string, queueName string, settings gobreaker.Settings, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if queueName == "" {
		queueName = DefaultAlertsQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	publisher := &RabbitMQPublisher{
		queueName:     queueName,
		cb:            gobreaker.NewCircuitBreaker(settings),
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
		logger:        logger,
	}

	if err := publisher.connect(rabbitMQURL); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	go publisher.handleReconnection(rabbitMQURL)

	return publisher, nil
}

// connect establishes connection to RabbitMQ
func (p *RabbitMQPublisher) connect(rabbitMQURL string) error {
	conn, channel, err := dialQueue(rabbitMQURL, p.queueName, p.maxRetries, p.retryDelay, p.logger)
	if err != nil {
		return err
	}

	p.connMutex.Lock()
	p.conn, p.channel = conn, channel
	p.connMutex.Unlock()

	p.logger.Info("alert publisher connected to RabbitMQ", zap.String("queue", p.queueName))
	return nil
}

// handleReconnection handles automatic reconnection to RabbitMQ
func (p *RabbitMQPublisher) handleReconnection(rabbitMQURL string) {
	for {
		select {
		case <-p.reconnectCh:
			p.logger.Info("attempting to reconnect to RabbitMQ")
			p.connMutex.Lock()
			if p.channel != nil {
				p.channel.Close()
			}
			if p.conn != nil {
				p.conn.Close()
			}
			p.connMutex.Unlock()

			if err := p.connect(rabbitMQURL); err != nil {
				p.logger.Error("reconnection failed", zap.Error(err))
			}
		case <-p.stopReconnect:
			return
		}
	}
}

// PublishGlucoseAlert publishes an alert event to RabbitMQ
func (p *RabbitMQPublisher) PublishGlucoseAlert(ctx context.Context, record domain.Record, assessment domain.GlucoseAssessment) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.publishWithRetry(ctx, buildAlertEvent(record, assessment, time.Now()))
	})
	if err != nil {
		alertsPublishedTotal.WithLabelValues("failed").Inc()
		return err
	}
	alertsPublishedTotal.WithLabelValues("published").Inc()
	return nil
}

// publishWithRetry publishes with retry logic
func (p *RabbitMQPublisher) publishWithRetry(ctx context.Context, event GlucoseAlertEvent) error {
	p.logger.Info("publishing glucose alert",
		zap.String("event", "alert_publish_attempt"),
		zap.String("record_id", event.RecordID.String()),
		zap.String("alert_type", event.AlertType),
		zap.String("severity", event.Severity),
		zap.Float64("sugar_level", event.SugarLevel),
	)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	var lastErr error
	for i := 0; i < p.maxRetries; i++ {
		p.connMutex.RLock()
		ch := p.channel
		conn := p.conn
		p.connMutex.RUnlock()

		if ch == nil || conn == nil || conn.IsClosed() {
			p.triggerReconnect()
			lastErr = fmt.Errorf("RabbitMQ connection is closed")
			time.Sleep(p.retryDelay)
			continue
		}

		err = ch.PublishWithContext(
			ctx,
			"",          // exchange
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp091.Persistent,
				MessageId:    event.EventID.String(),
				Timestamp:    time.Now(),
			},
		)
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.Warn("failed to publish alert",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", p.maxRetries),
			zap.Error(err),
		)

		if i < p.maxRetries-1 {
			p.triggerReconnect()
			time.Sleep(p.retryDelay)
		}
	}

	return fmt.Errorf("failed to publish alert after %d retries: %w", p.maxRetries, lastErr)
}

func (p *RabbitMQPublisher) triggerReconnect() {
	select {
	case p.reconnectCh <- true:
	default:
	}
}

// Close closes the RabbitMQ connection
func (p *RabbitMQPublisher) Close() error {
	close(p.stopReconnect)
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// dialQueue connects with retry and declares a durable queue
func dialQueue(rabbitMQURL, queueName string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*amqp091.Connection, *amqp091.Channel, error) {
	var conn *amqp091.Connection
	var err error
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp091.Dial(rabbitMQURL)
		if err == nil {
			break
		}
		logger.Warn("failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, err
	}

	return conn, channel, nil
}

var _ ports.AlertPublisher = (*RabbitMQPublisher)(nil)
