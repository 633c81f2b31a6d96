package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"supercv-backend/internal/poller"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{poller.ErrNotFound, 4},
		{fmt.Errorf("%w after 3 attempts", poller.ErrGaveUp), 3},
		{context.Canceled, 130},
		{errors.New("connection refused"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
