package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/wms-platform/warehouse-task-service/pkg/events"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
	"github.com/wms-platform/warehouse-task-service/pkg/metrics"
	"github.com/wms-platform/warehouse-task-service/pkg/resilience"
)

// CircuitBreakerProducer wraps Producer with circuit breaker protection and
// publish metrics
type CircuitBreakerProducer struct {
	producer       *Producer
	circuitBreaker *resilience.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *logging.Logger
}

// NewCircuitBreakerProducer creates a new circuit breaker protected Kafka producer
func NewCircuitBreakerProducer(producer *Producer, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")

	var slogLogger *slog.Logger
	if logger != nil && logger.Logger != nil {
		slogLogger = logger.Logger
	} else {
		slogLogger = slog.Default()
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: resilience.NewCircuitBreaker(config, slogLogger),
		metrics:        m,
		logger:         logger,
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *events.TaskCloudEvent) error {
	start := time.Now()
	_, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return nil, p.producer.PublishEvent(ctx, topic, event)
	})

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, time.Since(start))
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, time.Since(start))
	}

	return err
}

// State returns the circuit breaker state
func (p *CircuitBreakerProducer) State() string {
	return p.circuitBreaker.State().String()
}

// Close closes the underlying producer
func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
