package dbconfig

import (
	"cmp"
	"context"
	"slices"
)

// chainEntry pairs a config with its registration sequence.
type chainEntry struct {
	seq    int
	config Config
}

// Chain is an immutable, ordered set of configs keyed by name.
//
// Configs are sorted by (Order, registration sequence). With and Without
// return new chains, so a Chain can be shared between goroutines and
// swapped atomically by its owner.
type Chain struct {
	entries []chainEntry
	nextSeq int
}

// NewChain builds a chain from configs in registration order. A later config
// with the same name as an earlier one replaces it.
func NewChain(configs ...Config) *Chain {
	c := &Chain{}
	for _, cfg := range configs {
		c = c.With(cfg)
	}
	return c
}

// With returns a chain that contains cfg. If a config with the same name is
// already present it is replaced and keeps its registration sequence;
// otherwise cfg is appended. A nil cfg returns the chain unchanged.
func (c *Chain) With(cfg Config) *Chain {
	if cfg == nil {
		return c
	}

	next := c.clone()
	if i := next.indexOf(cfg.Name()); i >= 0 {
		next.entries[i].config = cfg
	} else {
		next.entries = append(next.entries, chainEntry{seq: next.nextSeq, config: cfg})
		next.nextSeq++
	}
	next.sort()
	return next
}

// Without returns a chain with the named config removed.
func (c *Chain) Without(name string) *Chain {
	next := c.clone()
	if i := next.indexOf(name); i >= 0 {
		next.entries = slices.Delete(next.entries, i, i+1)
	}
	return next
}

// Lookup returns the config registered under name.
func (c *Chain) Lookup(name string) (Config, bool) {
	if i := c.indexOf(name); i >= 0 {
		return c.entries[i].config, true
	}
	return nil, false
}

// Len returns the number of configs in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Configs returns the configs in application order.
func (c *Chain) Configs() []Config {
	if c == nil {
		return nil
	}
	out := make([]Config, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.config
	}
	return out
}

// Names returns the config names in application order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.config.Name()
	}
	return out
}

// Apply runs every config against h in order and stops at the first
// failure, returning a *ConfigError that wraps the config's error.
// Configs that already ran are not rolled back.
//
// Applying the same chain to the same handle again re-runs every config;
// the built-in configs are written so that this is harmless.
func (c *Chain) Apply(ctx context.Context, h Handle) error {
	if c == nil {
		return nil
	}
	for _, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.config.Apply(ctx, h); err != nil {
			return &ConfigError{
				Name:  e.config.Name(),
				Order: e.config.Order(),
				Err:   err,
			}
		}
	}
	return nil
}

func (c *Chain) clone() *Chain {
	if c == nil {
		return &Chain{}
	}
	return &Chain{
		entries: slices.Clone(c.entries),
		nextSeq: c.nextSeq,
	}
}

func (c *Chain) indexOf(name string) int {
	if c == nil {
		return -1
	}
	return slices.IndexFunc(c.entries, func(e chainEntry) bool {
		return e.config.Name() == name
	})
}

func (c *Chain) sort() {
	slices.SortStableFunc(c.entries, func(a, b chainEntry) int {
		if n := cmp.Compare(a.config.Order(), b.config.Order()); n != 0 {
			return n
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
