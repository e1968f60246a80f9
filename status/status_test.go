package status

import (
	"errors"
	"testing"
)

func TestStatusOK(t *testing.T) {
	var s *Status
	if !s.OK() {
		t.Fatal("nil status must be OK")
	}
	if New(OK, "fine").Err() != nil {
		t.Fatal("OK-coded status must convert to a nil error")
	}
}

func TestStatusErr(t *testing.T) {
	s := New(NotFound, "client %s not found", "alpha")
	err := s.Err()
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	got := FromError(err)
	if got.Code != NotFound {
		t.Fatalf("code = %v, want NotFound", got.Code)
	}
	if got.Message != "client alpha not found" {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestFromErrorUnrecognized(t *testing.T) {
	got := FromError(errors.New("boom"))
	if got.Code != Internal {
		t.Fatalf("code = %v, want Internal for an unrecognized error", got.Code)
	}
	if got.Message != "boom" {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestFromErrorNil(t *testing.T) {
	got := FromError(nil)
	if got.Code != OK {
		t.Fatalf("code = %v, want OK", got.Code)
	}
}
