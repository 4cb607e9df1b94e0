package integrity

import (
	"fmt"
	"strings"
	"testing"
)

func TestViolationMessage(t *testing.T) {
	err := Violation(KindTooManyProviders, "a-lookup-times.log", 3, `{"cid":"x"}`, "cid %s has %d providers", "x", 2)
	msg := err.Error()
	if !strings.Contains(msg, "TOO_MANY_PROVIDERS") || !strings.Contains(msg, "a-lookup-times.log:3") {
		t.Fatalf("unexpected message: %s", msg)
	}
	if err.Invariant() == "" {
		t.Fatalf("expected invariant description")
	}
}

func TestWithDirThroughWrapping(t *testing.T) {
	base := Violation(KindDuplicateCID, "", 0, "", "cid x")
	wrapped := fmt.Errorf("node b: %w", base)

	WithDir(wrapped, "/exp/0")
	ierr, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected integrity error in chain")
	}
	if ierr.Dir != "/exp/0" {
		t.Fatalf("expected dir to be stamped, got %q", ierr.Dir)
	}
	if !strings.Contains(ierr.Error(), "/exp/0") {
		t.Fatalf("expected dir as location: %s", ierr.Error())
	}
}

func TestAsIgnoresOtherErrors(t *testing.T) {
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Fatalf("plain error should not match")
	}
}
