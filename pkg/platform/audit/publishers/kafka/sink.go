// Package kafka streams audit events to a Kafka topic so security and
// compliance consumers (SIEM, retention pipelines) can fan out independently
// of the decision path.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "opsgate/pkg/domain"
	audit "opsgate/pkg/platform/audit"
	"opsgate/pkg/platform/sentinel"
)

const DefaultTopic = "opsgate.authz.audit"

// Sink publishes audit events to Kafka. Writes are asynchronous via the
// client's internal buffering; Close flushes whatever is in flight.
//
// Sink satisfies audit.Store so it can sit behind the publisher, but it is
// write-only: reads are served by the durable store.
type Sink struct {
	client *kgo.Client
	topic  string
}

// record is the wire shape for an audit event on the topic.
type record struct {
	Category      string    `json:"category"`
	Name          string    `json:"name,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id"`
	Action        string    `json:"action"`
	Region        string    `json:"region,omitempty"`
	CaseID        string    `json:"case_id,omitempty"`
	Decision      string    `json:"decision"`
	Reason        string    `json:"reason"`
	AuditLevel    string    `json:"audit_level,omitempty"`
	SecurityFlags []string  `json:"security_flags,omitempty"`
	MFAMethod     string    `json:"mfa_method,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
}

// New connects to the given brokers and ensures the topic exists.
func New(ctx context.Context, brokers []string, topic string) (*Sink, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
	}
	// An already-existing topic is fine; anything else is a setup failure.
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, resp.Err)
	}

	return &Sink{client: client, topic: topic}, nil
}

// Append publishes the event, keyed by user so per-user ordering holds.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(record{
		Category:      string(event.Category),
		Name:          string(event.Name),
		Timestamp:     event.Timestamp,
		UserID:        event.UserID.String(),
		Action:        event.Action,
		Region:        event.Region,
		CaseID:        event.CaseID,
		Decision:      event.Decision,
		Reason:        event.Reason,
		AuditLevel:    event.AuditLevel,
		SecurityFlags: event.SecurityFlags,
		MFAMethod:     event.MFAMethod,
		RequestID:     event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.client.Produce(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.UserID.String()),
		Value: payload,
	}, nil) // fire-and-forget; delivery errors surface on Close via Flush
	return nil
}

// ListByUser is unsupported on the streaming sink.
func (s *Sink) ListByUser(context.Context, id.UserID) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka sink is write-only: %w", sentinel.ErrUnavailable)
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close(ctx context.Context) error {
	defer s.client.Close()
	return s.client.Flush(ctx)
}
