package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/matcha-bridge/api/internal/domain"
	"github.com/matcha-bridge/api/internal/services"
)

func newTestTopic(t *testing.T, srv *pstest.Server) *pubsub.Topic {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "compliance-evaluations")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return topic
}

func TestPubSubEvaluationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	publisher, err := NewPubSubEvaluationPublisher(newTestTopic(t, srv))
	if err != nil {
		t.Fatalf("NewPubSubEvaluationPublisher: %v", err)
	}

	createdAt := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	evaluation := services.ComplianceEvaluation{
		ID:    "eval_01",
		RFQID: "rfq_42",
		Input: domain.ComplianceEvaluationInput{
			DestinationCountry: "JP",
			ProductCategory:    "organic-matcha",
			DeclaredValueUSD:   2000,
			WeightKg:           12.5,
		},
		Result: domain.ComplianceEvaluationResult{
			AppliedRuleIDs:        []string{"rule_01"},
			MissingCertifications: []string{"organic"},
			ComplianceLevel:       domain.ComplianceLevelHigh,
		},
		EvaluatedBy: "user_7",
		CreatedAt:   createdAt,
	}

	if err := publisher.PublishEvaluationSaved(ctx, evaluation); err != nil {
		t.Fatalf("PublishEvaluationSaved: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload EvaluationSavedMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.EvaluationID != "eval_01" || payload.RFQID != "rfq_42" || payload.ComplianceLevel != "HIGH" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if !payload.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected createdAt %s", payload.CreatedAt)
	}

	attrs := messages[0].Attributes
	if attrs["eventType"] != EvaluationSavedEventType {
		t.Fatalf("expected event type attribute, got %q", attrs["eventType"])
	}
	if attrs["rfqId"] != "rfq_42" || attrs["destinationCountry"] != "JP" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["quoteId"]; ok {
		t.Fatalf("blank quote id should not be set as attribute")
	}
}

func TestPubSubEvaluationPublisherEncodesEmptyLists(t *testing.T) {
	msg := newEvaluationSavedMessage(services.ComplianceEvaluation{ID: "eval_02"})
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ids, ok := decoded["appliedRuleIds"].([]any); !ok || len(ids) != 0 {
		t.Fatalf("expected empty appliedRuleIds array, got %#v", decoded["appliedRuleIds"])
	}
}

func TestNewPubSubEvaluationPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEvaluationPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
