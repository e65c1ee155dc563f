package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSteps_AllSucceed(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) step {
		return step{
			name: name,
			run: func(context.Context) error {
				order = append(order, name)
				return nil
			},
			compensate: func(context.Context) error {
				order = append(order, "undo "+name)
				return nil
			},
		}
	}

	failed, err := runSteps(context.Background(), discardLogger(), []step{mk("a"), mk("b"), mk("c")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed != "" {
		t.Errorf("failed step: got %q", failed)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRunSteps_CompensatesInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	steps := []step{
		{
			name: "first",
			run:  func(context.Context) error { order = append(order, "first"); return nil },
			compensate: func(context.Context) error {
				order = append(order, "undo first")
				return nil
			},
		},
		{
			name: "second",
			run:  func(context.Context) error { order = append(order, "second"); return nil },
			compensate: func(context.Context) error {
				order = append(order, "undo second")
				return nil
			},
		},
		{
			name: "third",
			run:  func(context.Context) error { return fmt.Errorf("boom") },
		},
	}

	failed, err := runSteps(context.Background(), discardLogger(), steps)
	if err == nil {
		t.Fatal("expected error")
	}
	if failed != "third" {
		t.Errorf("failed step: got %q", failed)
	}
	want := []string{"first", "second", "undo second", "undo first"}
	if len(order) != len(want) {
		t.Fatalf("order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: got %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRunSteps_CompensationFailureDoesNotMaskError(t *testing.T) {
	t.Parallel()

	steps := []step{
		{
			name:       "first",
			run:        func(context.Context) error { return nil },
			compensate: func(context.Context) error { return fmt.Errorf("undo failed") },
		},
		{
			name: "second",
			run:  func(context.Context) error { return fmt.Errorf("original failure") },
		},
	}

	failed, err := runSteps(context.Background(), discardLogger(), steps)
	if failed != "second" {
		t.Errorf("failed step: got %q", failed)
	}
	if err == nil || err.Error() != "original failure" {
		t.Errorf("error: got %v", err)
	}
}

func TestRunSteps_SkipsNilCompensation(t *testing.T) {
	t.Parallel()

	var undone []string
	steps := []step{
		{name: "a", run: func(context.Context) error { return nil }},
		{
			name: "b",
			run:  func(context.Context) error { return nil },
			compensate: func(context.Context) error {
				undone = append(undone, "b")
				return nil
			},
		},
		{name: "c", run: func(context.Context) error { return fmt.Errorf("boom") }},
	}

	if _, err := runSteps(context.Background(), discardLogger(), steps); err == nil {
		t.Fatal("expected error")
	}
	if len(undone) != 1 || undone[0] != "b" {
		t.Errorf("undone: %v", undone)
	}
}
