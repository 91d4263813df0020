// Package credential includes tests for the credential pool.
package credential

import (
	"errors"
	"testing"

	"github.com/pagelift/pagelift/internal/extract"
)

// TestNewPoolRejectsEmptyList ensures a missing credential list aborts setup.
func TestNewPoolRejectsEmptyList(t *testing.T) {
	t.Parallel()

	if _, err := NewPool(nil); err == nil {
		t.Fatalf("expected error for nil token list")
	}
	_, err := NewPool([]string{})
	var ce *extract.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestNewPoolRejectsBlankToken ensures a blank entry is caught at startup.
func TestNewPoolRejectsBlankToken(t *testing.T) {
	t.Parallel()

	_, err := NewPool([]string{"tok-a", "", "tok-c"})
	var ce *extract.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

// TestPoolIsCopied ensures later mutation of the input slice has no effect.
func TestPoolIsCopied(t *testing.T) {
	t.Parallel()

	tokens := []string{"tok-a", "tok-b"}
	pool, err := NewPool(tokens)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	tokens[0] = "mutated"
	if got := pool.Token(0); got != "tok-a" {
		t.Fatalf("expected pool to hold its own copy, got %s", got)
	}
}

// TestPoolLabels checks slot labels are 1-based and stable.
func TestPoolLabels(t *testing.T) {
	t.Parallel()

	pool, err := NewPool([]string{"tok-a", "tok-b", "tok-c"})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if got := pool.Label(0); got != "key-1" {
		t.Fatalf("expected key-1, got %s", got)
	}
	if got := pool.Label(2); got != "key-3" {
		t.Fatalf("expected key-3, got %s", got)
	}
}

// TestResolveStartIndex covers known, unknown, and empty preferences.
func TestResolveStartIndex(t *testing.T) {
	t.Parallel()

	pool, err := NewPool([]string{"tok-a", "tok-b", "tok-c"})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if got := pool.ResolveStartIndex("tok-b"); got != 1 {
		t.Fatalf("expected slot 1 for tok-b, got %d", got)
	}
	if got := pool.ResolveStartIndex("unknown"); got != 0 {
		t.Fatalf("expected fallback slot 0 for unknown token, got %d", got)
	}
	if got := pool.ResolveStartIndex(""); got != 0 {
		t.Fatalf("expected slot 0 for empty preference, got %d", got)
	}
}

// TestNextWrapsAround ensures circular increment over the pool.
func TestNextWrapsAround(t *testing.T) {
	t.Parallel()

	pool, err := NewPool([]string{"tok-a", "tok-b", "tok-c"})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if got := pool.Next(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := pool.Next(2); got != 0 {
		t.Fatalf("expected wrap to 0, got %d", got)
	}

	single, err := NewPool([]string{"only"})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if got := single.Next(0); got != 0 {
		t.Fatalf("expected single-slot pool to wrap to itself, got %d", got)
	}
}
