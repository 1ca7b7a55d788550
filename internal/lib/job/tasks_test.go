package job

import (
	"encoding/json"
	"testing"
)

func TestNewChangesetEnrichTask(t *testing.T) {
	task, err := NewChangesetEnrichTask(31982803)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskChangesetEnrich {
		t.Errorf("unexpected task type: %q", task.Type())
	}

	var p ChangesetEnrichPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if p.ChangesetID != 31982803 {
		t.Errorf("unexpected changeset id: %d", p.ChangesetID)
	}
}

func TestNewHarmfulAlertTask(t *testing.T) {
	task, err := NewHarmfulAlertTask(42, "reviewer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskHarmfulAlert {
		t.Errorf("unexpected task type: %q", task.Type())
	}

	var p HarmfulAlertPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatalf("payload did not round-trip: %v", err)
	}
	if p.ChangesetID != 42 || p.CheckUser != "reviewer" {
		t.Errorf("unexpected payload: %+v", p)
	}
}
