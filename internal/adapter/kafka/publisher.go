package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/telemetry-arrival-report/internal/config"
	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces built monthly reports to a Kafka topic.
// It implements report.Publisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured report topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaReportTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		// Reports are written one at a time; flush without waiting for a batch.
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishReport serializes the report and writes it keyed by its month, so
// successive versions of the same month land on the same partition.
func (p *Publisher) PublishReport(ctx context.Context, report domain.Report, generatedAt time.Time) error {
	msg, err := serializeReport(report, generatedAt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report %s: %w", string(msg.Key), err)
	}
	p.logger.Debug("report published", "month", string(msg.Key), "rows", len(report.Rows))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ReportKey identifies a report month, e.g. "2026-03".
func ReportKey(report domain.Report) string {
	return fmt.Sprintf("%04d-%02d", report.Year, report.Month)
}

// serializeReport marshals a Report into a Kafka message.
func serializeReport(report domain.Report, generatedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ReportKey(report)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "day_start_hour", Value: []byte(strconv.Itoa(report.DayStartHour))},
			{Key: "generated_at", Value: []byte(generatedAt.UTC().Format(time.RFC3339))},
		},
		Time: generatedAt,
	}, nil
}
