// Package tokenizer keeps the shared table of full-text tokenizers that can
// be registered on database handles.
//
// A tokenizer is identified by name and carries an opaque address payload
// (for SQLite's fts3_tokenizer this is the native sqlite3_tokenizer_module
// pointer encoded as bytes). The registry never interprets the payload.
package tokenizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrUnknownTokenizer is returned when a name has not been registered.
	ErrUnknownTokenizer = errors.New("tokenizer: not registered")

	// ErrInvalidTokenizer is returned when a registration has an empty name
	// or an empty address.
	ErrInvalidTokenizer = errors.New("tokenizer: invalid registration")
)

// Registry maps tokenizer names to their address payloads.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	addresses map[string][]byte
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{addresses: make(map[string][]byte)}
}

// Register stores a copy of address under name, replacing any previous
// registration.
func (r *Registry) Register(name string, address []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTokenizer)
	}
	if len(address) == 0 {
		return fmt.Errorf("%w: empty address for %q", ErrInvalidTokenizer, name)
	}

	r.mu.Lock()
	r.addresses[name] = slices.Clone(address)
	r.mu.Unlock()
	return nil
}

// Address returns a copy of the payload registered under name.
func (r *Registry) Address(name string) ([]byte, error) {
	r.mu.RLock()
	address, ok := r.addresses[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTokenizer, name)
	}
	return slices.Clone(address), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.addresses))
	for name := range r.addresses {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
