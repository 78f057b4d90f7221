package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/core"
)

func TestTransientClassification(t *testing.T) {
	t.Parallel()

	base := errors.New("upstream 503")
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: base, want: false},
		{name: "transient", err: core.Transient(base), want: true},
		{name: "wrapped transient", err: fmt.Errorf("translate: %w", core.Transient(base)), want: true},
		{name: "limited", err: &core.LimitedTransientError{Err: base, ExtraRetries: 1}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := core.IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v)=%v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransientKeepsCause(t *testing.T) {
	t.Parallel()

	base := errors.New("rate limited")
	err := core.Transient(base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if err.Error() != "rate limited" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if core.Transient(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}

	lim := &core.LimitedTransientError{Err: base, ExtraRetries: -3}
	if lim.MaxExtraRetries() != 0 {
		t.Fatalf("expected negative cap to clamp to 0, got %d", lim.MaxExtraRetries())
	}
}
