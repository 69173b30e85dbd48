package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/forecast-precip-etl/internal/config"
	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const keyLayout = "2006-01-02"

// messageWriter is the subset of *kafkago.Writer the Writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes finished reports to a Kafka topic, one message per issue
// date. It implements pipeline.ReportLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// issueMessage is the JSON value of one published issue date.
type issueMessage struct {
	RunID       string              `json:"run_id"`
	Region      string              `json:"region"`
	GeneratedAt time.Time           `json:"generated_at"`
	IssueDate   time.Time           `json:"issue_date"`
	Total       float64             `json:"total"`
	Horizons    []domain.HorizonRow `json:"horizons"`
}

// LoadReport serializes the report's issue series and publishes them in a
// single WriteMessages call. A report without issue dates publishes nothing.
func (w *Writer) LoadReport(ctx context.Context, report domain.Report) error {
	msgs, err := serializeReport(report)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish report %s: %w", report.RunID, err)
	}
	w.logger.Info("report published", "run_id", report.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeReport marshals each issue series into a Kafka message keyed by
// its issue date.
func serializeReport(report domain.Report) ([]kafkago.Message, error) {
	series := report.Series()
	msgs := make([]kafkago.Message, 0, len(series))
	headers := []kafkago.Header{
		{Key: "run_id", Value: []byte(report.RunID)},
		{Key: "region", Value: []byte(report.Region)},
		{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
	}
	for _, s := range series {
		data, err := json.Marshal(issueMessage{
			RunID:       report.RunID,
			Region:      report.Region,
			GeneratedAt: report.GeneratedAt,
			IssueDate:   s.IssueDate,
			Total:       s.Total,
			Horizons:    s.Horizons,
		})
		if err != nil {
			return nil, fmt.Errorf("serialize issue %s: %w", s.IssueDate.Format(keyLayout), err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:     []byte(s.IssueDate.Format(keyLayout)),
			Value:   data,
			Headers: headers,
		})
	}
	return msgs, nil
}
