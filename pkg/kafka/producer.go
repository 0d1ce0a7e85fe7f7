package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"github.com/wms-platform/warehouse-task-service/pkg/events"
)

// Producer handles publishing messages to Kafka topics
type Producer struct {
	mu        sync.Mutex
	writers   map[string]*kafka.Writer
	config    *Config
	transport *kafka.Transport
}

// NewProducer creates a new Kafka producer. TLS and SASL settings are
// validated lazily, when the first writer is built.
func NewProducer(config *Config) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		config:  config,
	}
}

// getWriter returns a writer for the specified topic, creating one if necessary
func (p *Producer) getWriter(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer, nil
	}

	if p.transport == nil {
		transport, err := buildTransport(p.config)
		if err != nil {
			return nil, err
		}
		p.transport = transport
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		Async:        false,
		Transport:    p.transport,
	}

	p.writers[topic] = writer
	return writer, nil
}

// buildTransport translates the TLS and SASL settings into a kafka transport
func buildTransport(config *Config) (*kafka.Transport, error) {
	transport := &kafka.Transport{}

	if config.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

		if config.TLSCA != "" {
			caPEM, err := os.ReadFile(config.TLSCA)
			if err != nil {
				return nil, fmt.Errorf("failed to read kafka CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("failed to parse kafka CA file %s", config.TLSCA)
			}
			tlsConfig.RootCAs = pool
		}

		if config.TLSCert != "" && config.TLSKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLSCert, config.TLSKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load kafka client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		transport.TLS = tlsConfig
	}

	if config.SASLEnabled {
		mechanism, err := saslMechanism(config)
		if err != nil {
			return nil, err
		}
		transport.SASL = mechanism
	}

	return transport, nil
}

func saslMechanism(config *Config) (sasl.Mechanism, error) {
	switch config.SASLMechanism {
	case "", "plain":
		return plain.Mechanism{Username: config.SASLUsername, Password: config.SASLPassword}, nil
	case "scram-sha-256":
		return scram.Mechanism(scram.SHA256, config.SASLUsername, config.SASLPassword)
	case "scram-sha-512":
		return scram.Mechanism(scram.SHA512, config.SASLUsername, config.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", config.SASLMechanism)
	}
}

// PublishEvent publishes a CloudEvent to the specified topic
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *events.TaskCloudEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	writer, err := p.getWriter(topic)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     messageKey(event),
		Value:   data,
		Headers: eventHeaders(event),
		Time:    event.Time,
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	return nil
}

// messageKey keys messages by warehouse so one warehouse's events stay ordered
// within a partition
func messageKey(event *events.TaskCloudEvent) []byte {
	if event.WarehouseID != "" {
		return []byte(event.WarehouseID)
	}
	return []byte(event.Subject)
}

func eventHeaders(event *events.TaskCloudEvent) []kafka.Header {
	headers := []kafka.Header{
		{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
		{Key: "ce-type", Value: []byte(event.Type)},
		{Key: "ce-source", Value: []byte(event.Source)},
		{Key: "ce-id", Value: []byte(event.ID)},
		{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339))},
		{Key: "content-type", Value: []byte(event.DataContentType)},
	}

	if event.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "ce-wmscorrelationid", Value: []byte(event.CorrelationID)})
	}
	if event.WarehouseID != "" {
		headers = append(headers, kafka.Header{Key: "ce-wmswarehouseid", Value: []byte(event.WarehouseID)})
	}
	if event.TaskID != "" {
		headers = append(headers, kafka.Header{Key: "ce-wmstaskid", Value: []byte(event.TaskID)})
	}
	if event.OrderID != "" {
		headers = append(headers, kafka.Header{Key: "ce-wmsorderid", Value: []byte(event.OrderID)})
	}

	return headers
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
