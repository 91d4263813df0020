// Package credential manages the fixed pool of recognition credentials used
// for parallelism and failover.
package credential

import (
	"fmt"

	"github.com/pagelift/pagelift/internal/extract"
)

// Pool is an ordered, fixed-size set of interchangeable credentials. Slot i
// seeds the first attempt of every chunk assigned to worker slot i; failover
// may still rotate a chunk through any slot. The pool is read-only after
// construction and safe for concurrent use without locking.
type Pool struct {
	tokens []string
}

// NewPool builds a pool from the configured token list. An empty list is a
// configuration error raised before any chunk work begins.
func NewPool(tokens []string) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, &extract.ConfigurationError{Field: "credentials", Reason: "at least one credential is required"}
	}
	for i, tok := range tokens {
		if tok == "" {
			return nil, &extract.ConfigurationError{Field: "credentials", Reason: fmt.Sprintf("credential %d is empty", i+1)}
		}
	}
	out := make([]string, len(tokens))
	copy(out, tokens)
	return &Pool{tokens: out}, nil
}

// Size returns the number of slots K.
func (p *Pool) Size() int {
	return len(p.tokens)
}

// Token returns the credential at the given slot.
func (p *Pool) Token(index int) string {
	return p.tokens[index]
}

// Label returns the loggable name of a slot (key-1, key-2, ...). Token
// values themselves never appear in logs or durable records.
func (p *Pool) Label(index int) string {
	return fmt.Sprintf("key-%d", index+1)
}

// ResolveStartIndex maps a preferred credential to its slot, or slot 0 when
// the preference is absent or unknown.
func (p *Pool) ResolveStartIndex(preferred string) int {
	if preferred == "" {
		return 0
	}
	for i, tok := range p.tokens {
		if tok == preferred {
			return i
		}
	}
	return 0
}

// Next returns the slot after index, wrapping around the pool.
func (p *Pool) Next(index int) int {
	return (index + 1) % len(p.tokens)
}
