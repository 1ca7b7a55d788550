package validation

import (
	"errors"
	"reflect"
	"testing"
)

func TestBindErrorMessage(t *testing.T) {
	err := errors.New("code=400, message=Unmarshal type error: expected=int, got=string, internal=...")
	if got := bindErrorMessage(err); got != "Unmarshal type error: expected=int" {
		t.Errorf("unexpected message: %q", got)
	}

	err = errors.New("something unexpected")
	if got := bindErrorMessage(err); got != "Malformed request body" {
		t.Errorf("expected fallback message, got %q", got)
	}
}

func TestExtractValidationErrorCustom(t *testing.T) {
	err := CustomValidationErrors{
		{Field: "date__gte", Message: "must be a valid date"},
	}

	msg, fieldErrors := extractValidationError(err)
	if msg != "Validation failed" {
		t.Errorf("unexpected message: %q", msg)
	}
	if len(fieldErrors) != 1 || fieldErrors[0].Field != "date__gte" {
		t.Errorf("unexpected field errors: %+v", fieldErrors)
	}
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList("1, 2,3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{1, 2, 3}) {
		t.Errorf("unexpected ids: %v", ids)
	}

	ids, err = ParseIDList("  ")
	if err != nil || ids != nil {
		t.Errorf("expected nil for blank input, got %v, %v", ids, err)
	}

	if _, err := ParseIDList("1,abc"); err == nil {
		t.Error("expected error for non-numeric item")
	}
}

func TestParseStringList(t *testing.T) {
	got := ParseStringList("JOSM, iD ,,Potlatch")
	want := []string{"JOSM", "iD", "Potlatch"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got := ParseStringList(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
