package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("publish", "Field title can't be empty"), KindValidation},
		{"conflict wait", ConflictWait("idempotency.begin", cause), KindConflictWait},
		{"transient store", TransientStore("publish", cause), KindTransientStore},
		{"delivery", Delivery("worker.send", cause), KindDelivery},
		{"wrapped", fmt.Errorf("outer: %w", TransientStore("queue.enqueue", cause)), KindTransientStore},
		{"untagged", cause, KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIs_NilError(t *testing.T) {
	if Is(nil, KindUnknown) {
		t.Error("expected nil error to carry no kind")
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := TransientStore("publish", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
	if got := err.Error(); got != "publish: transient_store: deadlock detected" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestValidation_KeepsAllViolations(t *testing.T) {
	err := fmt.Errorf("handler: %w", Validation("publish",
		"Field title can't be empty",
		"Field text content can't be empty",
	))

	got := ViolationsOf(err)
	if len(got) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(got))
	}
	if got[1] != "Field text content can't be empty" {
		t.Errorf("unexpected second violation: %q", got[1])
	}
}
