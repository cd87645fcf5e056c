package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/matcha-bridge/api/internal/services"
)

// EvaluationSavedEventType is set on the eventType attribute of every published message.
const EvaluationSavedEventType = "compliance.evaluation.saved"

// EvaluationSavedMessage is the JSON body published for each saved compliance evaluation.
type EvaluationSavedMessage struct {
	EvaluationID          string    `json:"evaluationId"`
	RFQID                 string    `json:"rfqId,omitempty"`
	QuoteID               string    `json:"quoteId,omitempty"`
	OrderID               string    `json:"orderId,omitempty"`
	DestinationCountry    string    `json:"destinationCountry"`
	ProductCategory       string    `json:"productCategory"`
	DeclaredValueUSD      float64   `json:"declaredValueUsd"`
	WeightKg              float64   `json:"weightKg"`
	ComplianceLevel       string    `json:"complianceLevel"`
	AppliedRuleIDs        []string  `json:"appliedRuleIds"`
	MissingCertifications []string  `json:"missingCertifications"`
	EvaluatedBy           string    `json:"evaluatedBy,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}

// PubSubEvaluationPublisher publishes evaluation audit events to a Pub/Sub topic.
type PubSubEvaluationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.EvaluationPublisher = (*PubSubEvaluationPublisher)(nil)

// NewPubSubEvaluationPublisher constructs a Pub/Sub backed evaluation publisher.
func NewPubSubEvaluationPublisher(topic *pubsub.Topic) (*PubSubEvaluationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub evaluation publisher: topic is required")
	}
	return &PubSubEvaluationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishEvaluationSaved emits the evaluation on the configured topic and waits for the server ack.
func (p *PubSubEvaluationPublisher) PublishEvaluationSaved(ctx context.Context, evaluation services.ComplianceEvaluation) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub evaluation publisher: not initialised")
	}

	data, err := p.marshal(newEvaluationSavedMessage(evaluation))
	if err != nil {
		return fmt.Errorf("marshal evaluation event: %w", err)
	}

	attrs := map[string]string{"eventType": EvaluationSavedEventType}
	setAttr(attrs, "evaluationId", evaluation.ID)
	setAttr(attrs, "rfqId", evaluation.RFQID)
	setAttr(attrs, "quoteId", evaluation.QuoteID)
	setAttr(attrs, "orderId", evaluation.OrderID)
	setAttr(attrs, "complianceLevel", string(evaluation.Result.ComplianceLevel))
	setAttr(attrs, "destinationCountry", evaluation.Input.DestinationCountry)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish evaluation event: %w", err)
	}
	return nil
}

// Stop flushes pending messages. It does not close the owning client.
func (p *PubSubEvaluationPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func newEvaluationSavedMessage(evaluation services.ComplianceEvaluation) EvaluationSavedMessage {
	return EvaluationSavedMessage{
		EvaluationID:          evaluation.ID,
		RFQID:                 evaluation.RFQID,
		QuoteID:               evaluation.QuoteID,
		OrderID:               evaluation.OrderID,
		DestinationCountry:    evaluation.Input.DestinationCountry,
		ProductCategory:       evaluation.Input.ProductCategory,
		DeclaredValueUSD:      evaluation.Input.DeclaredValueUSD,
		WeightKg:              evaluation.Input.WeightKg,
		ComplianceLevel:       string(evaluation.Result.ComplianceLevel),
		AppliedRuleIDs:        nonNil(evaluation.Result.AppliedRuleIDs),
		MissingCertifications: nonNil(evaluation.Result.MissingCertifications),
		EvaluatedBy:           evaluation.EvaluatedBy,
		CreatedAt:             evaluation.CreatedAt.UTC(),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
