// Package events publishes a notice for every completed analysis.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/ppiankov/txlens/internal/model"
)

// Publisher announces finished analyses
type Publisher interface {
	Publish(ctx context.Context, report *model.Report) error
	Close() error
}

// AnalysisEvent is the message body. It carries the verdict, never the
// addresses.
type AnalysisEvent struct {
	TxID       string         `json:"txid"`
	Provider   string         `json:"provider"`
	Score      int            `json:"score"`
	Judgment   model.Judgment `json:"judgment"`
	Rules      []model.RuleID `json:"rules"`
	Confirmed  bool           `json:"confirmed"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
}

// NewAnalysisEvent builds the event for report
func NewAnalysisEvent(report *model.Report) AnalysisEvent {
	rules := make([]model.RuleID, 0, len(report.Score.Entries))
	for _, e := range report.Score.Entries {
		rules = append(rules, e.Rule)
	}
	return AnalysisEvent{
		TxID:       report.TxID,
		Provider:   report.Provider,
		Score:      report.Score.Value,
		Judgment:   report.Score.Judgment,
		Rules:      rules,
		Confirmed:  report.Confirmed,
		AnalyzedAt: report.FetchedAt,
	}
}

// KafkaPublisher sends events to a Kafka topic and waits for the broker ack
type KafkaPublisher struct {
	topic string
	sp    sarama.SyncProducer
}

// NewKafkaPublisher connects a synchronous producer to the brokers
func NewKafkaPublisher(brokersCSV, topic string) (*KafkaPublisher, error) {
	if topic == "" {
		return nil, errors.New("events: topic empty")
	}
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("events: no brokers")
	}

	sp, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}
	return newKafkaPublisher(sp, topic), nil
}

// NewProducerConfig returns the producer settings used for events
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "txlens"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true // required by SyncProducer
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = 5 * time.Second
	return cfg
}

func newKafkaPublisher(sp sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{topic: topic, sp: sp}
}

// Publish sends the event for report keyed by txid, so all analyses of one
// transaction land on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, report *model.Report) error {
	payload, err := json.Marshal(NewAnalysisEvent(report))
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	// SyncProducer takes no context; check before sending.
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err = p.sp.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(report.TxID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("events: send: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	if p.sp != nil {
		return p.sp.Close()
	}
	return nil
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, *model.Report) error { return nil }
func (Nop) Close() error                                 { return nil }

// New returns a Kafka publisher when brokers are configured and Nop otherwise
func New(cfg model.EventsConfig) (Publisher, error) {
	if strings.TrimSpace(cfg.Brokers) == "" {
		return Nop{}, nil
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
