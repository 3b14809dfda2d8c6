package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/target/harvestd/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.HarvestFailurePayload{
		JobID:      "job-1",
		SourceID:   "src-1",
		SourceName: "epa-gov",
		Stage:      notify.StageReconcile,
		Error:      "boom",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata:   map[string]string{"job_id": "ignored", "attempt": "2"},
	})

	if event["dedup_key"] != "reconcile:job-1" {
		t.Fatalf("unexpected dedup key: %v", event["dedup_key"])
	}
	body, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload missing")
	}
	if body["summary"] != "Harvest job job-1 for source epa-gov failed during reconcile" {
		t.Fatalf("unexpected summary: %v", body["summary"])
	}
	if body["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", body["severity"])
	}
	if body["source"] != "harvestd" || body["component"] != "harvest-runner" {
		t.Fatalf("unexpected source/component: %v/%v", body["source"], body["component"])
	}
	if body["timestamp"] != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", body["timestamp"])
	}
	custom, ok := body["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("custom details missing")
	}
	if custom["job_id"] != "job-1" {
		t.Fatalf("metadata must not override canonical fields, got %v", custom["job_id"])
	}
	if custom["attempt"] != "2" {
		t.Fatalf("metadata not merged: %v", custom)
	}
}

func TestSendHarvestFailureUsesEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, Client: srv.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendHarvestFailure(context.Background(), notify.HarvestFailurePayload{JobID: "j"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["routing_key"] != "rk" || got["event_action"] != "trigger" {
		t.Fatalf("unexpected event: %v", got)
	}
}
