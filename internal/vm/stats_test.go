package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/jbweber/anvil/internal/script"
)

func TestStats(t *testing.T) {
	tests := []struct {
		name      string
		result    script.Result
		wantDoc   string
		wantParse bool
		wantExt   bool
	}{
		{
			name:    "valid json",
			result:  okResult(`{"cpu_percent": 12.5, "mem_used_mb": 512}`),
			wantDoc: `{"cpu_percent": 12.5, "mem_used_mb": 512}`,
		},
		{
			name:      "malformed",
			result:    okResult("not-json"),
			wantParse: true,
		},
		{
			name:      "empty output",
			result:    okResult(""),
			wantParse: true,
		},
		{
			name:    "script fails",
			result:  exitResult(1, "VM not running"),
			wantExt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTestManager(Options{})
			id := tm.store.seed(testInstance("web1"))
			tm.runner.on(script.Stats, tt.result)

			doc, err := tm.Stats(context.Background(), id)

			switch {
			case tt.wantParse:
				var perr *StatsParseError
				if !errors.As(err, &perr) {
					t.Fatalf("expected StatsParseError, got: %v", err)
				}
				if perr.Raw != tt.result.Stdout {
					t.Errorf("expected raw %q, got %q", tt.result.Stdout, perr.Raw)
				}
			case tt.wantExt:
				var extErr *ExternalError
				if !errors.As(err, &extErr) {
					t.Fatalf("expected ExternalError, got: %v", err)
				}
				if extErr.Diagnostic() != "VM not running" {
					t.Errorf("unexpected diagnostic %q", extErr.Diagnostic())
				}
			default:
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				if string(doc) != tt.wantDoc {
					t.Errorf("expected %s, got %s", tt.wantDoc, doc)
				}
			}

			calls := tm.runner.callsFor(script.Stats)
			if len(calls) != 1 || joinArgs(calls[0]) != "web1" {
				t.Errorf("unexpected stats calls: %+v", calls)
			}
		})
	}
}

func TestStats_NotFound(t *testing.T) {
	tm := newTestManager(Options{})

	_, err := tm.Stats(context.Background(), 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if n := tm.runner.callCount(); n != 0 {
		t.Errorf("expected no script calls, got %d", n)
	}
}
