package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/towerguard/site-health/internal/config"
	"github.com/towerguard/site-health/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces feature records and predictions to their Kafka topics,
// keyed by site id so every record of a site lands on one partition.
// It implements pipeline.RecordSink.
type Publisher struct {
	features    messageWriter
	predictions messageWriter
	logger      *slog.Logger
}

// NewPublisher creates producers for the configured features and
// predictions topics.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		features:    newWriter(cfg.KafkaBrokers, cfg.KafkaFeaturesTopic),
		predictions: newWriter(cfg.KafkaBrokers, cfg.KafkaPredictionsTopic),
		logger:      logger,
	}
}

func newWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "kafka" }

// SaveFeatures publishes a feature record.
func (p *Publisher) SaveFeatures(ctx context.Context, rec domain.FeatureRecord) error {
	msg, err := serializeFeatures(rec)
	if err != nil {
		return err
	}
	if err := p.features.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish features %s: %w", rec.ID, err)
	}
	p.logger.Debug("features published", "site_id", rec.SiteID, "features_id", rec.ID)
	return nil
}

// SavePrediction publishes a prediction.
func (p *Publisher) SavePrediction(ctx context.Context, pred domain.Prediction) error {
	msg, err := serializePrediction(pred)
	if err != nil {
		return err
	}
	if err := p.predictions.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish prediction %s: %w", pred.ID, err)
	}
	p.logger.Debug("prediction published", "site_id", pred.SiteID, "prediction_id", pred.ID)
	return nil
}

// Close flushes and closes both producers.
func (p *Publisher) Close() error {
	ferr := p.features.Close()
	perr := p.predictions.Close()
	if ferr != nil {
		return ferr
	}
	return perr
}

// serializeFeatures marshals a FeatureRecord into a Kafka message.
func serializeFeatures(rec domain.FeatureRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.SiteID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_id", Value: []byte(rec.ID)},
			{Key: "partial", Value: []byte(strconv.FormatBool(rec.Partial))},
			{Key: "created_at", Value: []byte(rec.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializePrediction marshals a Prediction into a Kafka message.
func serializePrediction(p domain.Prediction) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.SiteID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_id", Value: []byte(p.ID)},
			{Key: "category", Value: []byte(p.Category)},
			{Key: "path", Value: []byte(p.Path)},
			{Key: "partial", Value: []byte(strconv.FormatBool(p.Partial))},
			{Key: "created_at", Value: []byte(p.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
