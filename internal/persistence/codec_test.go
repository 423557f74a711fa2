package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/petrijr/flux/pkg/api"
)

func TestCodec_PreservesNestedHistoryAndTimes(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 123, time.UTC)
	started := created.Add(time.Second)
	done := started.Add(250 * time.Millisecond)

	state := &api.WorkflowState{
		ID:          "wf-1",
		Name:        "orders",
		Input:       map[string]any{"value": 5},
		Data:        map[string]any{"items": []any{"a", 2}, "nested": map[string]any{"ok": true}},
		Status:      api.StatusSuspended,
		CurrentStep: 1,
		History: []api.StepExecution{
			{Name: "charge", Status: api.StepCompleted, StartedAt: &started, CompletedAt: &done, Duration: done.Sub(started), Retries: 2},
			{Name: "approve", Status: api.StepSuspended, StartedAt: &done, WaitingFor: "approval"},
		},
		CreatedAt: created,
		UpdatedAt: done,
	}

	data, err := EncodeState(state)
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}

	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt mismatch: %v vs %v", got.CreatedAt, created)
	}
	if got.CompletedAt != nil {
		t.Fatalf("expected nil CompletedAt, got %v", got.CompletedAt)
	}
	if len(got.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(got.History))
	}
	h := got.History[0]
	if h.Retries != 2 || h.Duration != 250*time.Millisecond || !h.CompletedAt.Equal(done) {
		t.Fatalf("unexpected first slot: %+v", h)
	}
	if got.History[1].WaitingFor != "approval" {
		t.Fatalf("expected WaitingFor=approval, got %q", got.History[1].WaitingFor)
	}
	nested, ok := got.Data["nested"].(map[string]any)
	if !ok || nested["ok"] != true {
		t.Fatalf("nested data lost: %#v", got.Data["nested"])
	}
	in, ok := got.Input.(map[string]any)
	if !ok || in["value"] != 5 {
		t.Fatalf("input lost: %#v", got.Input)
	}
}

func TestCodec_EmptyDataDecodesToEmptyMap(t *testing.T) {
	data, err := EncodeState(&api.WorkflowState{ID: "wf-1", Data: map[string]any{}})
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if got.Data == nil {
		t.Fatalf("expected non-nil Data")
	}
}

func TestCodec_EmptyPayloadIsNotFound(t *testing.T) {
	if _, err := DecodeState(nil); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}
