package dbconfig

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// recorder returns a config that appends its name to *log when applied.
func recorder(name string, order Order, log *[]string, err error) Config {
	return Func(name, order, func(context.Context, Handle) error {
		*log = append(*log, name)
		return err
	})
}

func TestChain_AppliesInOrderRegardlessOfRegistration(t *testing.T) {
	var applied []string
	chain := NewChain(
		recorder("checkpoint", OrderCheckpoint, &applied, nil),
		recorder("cipher", OrderCipher, &applied, nil),
		recorder("tokenize", OrderTokenize, &applied, nil),
		recorder("basic", OrderBasic, &applied, nil),
		recorder("trace", OrderTrace, &applied, nil),
	)

	if err := chain.Apply(context.Background(), newFakeHandle("a.db")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []string{"cipher", "trace", "basic", "tokenize", "checkpoint"}
	if !slices.Equal(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}
	if !slices.Equal(chain.Names(), want) {
		t.Errorf("Names() = %v, want %v", chain.Names(), want)
	}
}

func TestChain_TiesBrokenByRegistration(t *testing.T) {
	var applied []string
	chain := NewChain(
		recorder("z", OrderCustom, &applied, nil),
		recorder("a", OrderCustom, &applied, nil),
		recorder("m", OrderCustom, &applied, nil),
	)

	if err := chain.Apply(context.Background(), newFakeHandle("a.db")); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []string{"z", "a", "m"}
	if !slices.Equal(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}
}

func TestChain_StopsAtFirstFailure(t *testing.T) {
	errBoom := errors.New("boom")

	var applied []string
	chain := NewChain(
		recorder("late", OrderCheckpoint, &applied, nil),
		recorder("failing", OrderBasic, &applied, errBoom),
		recorder("early", OrderCipher, &applied, nil),
	)

	err := chain.Apply(context.Background(), newFakeHandle("a.db"))
	if !errors.Is(err, errBoom) {
		t.Fatalf("Apply() error = %v, want %v", err, errBoom)
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Apply() error type = %T, want *ConfigError", err)
	}
	if cfgErr.Name != "failing" || cfgErr.Order != OrderBasic {
		t.Errorf("ConfigError = {%q, %v}, want {failing, basic}", cfgErr.Name, cfgErr.Order)
	}

	want := []string{"early", "failing"}
	if !slices.Equal(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}
}

func TestChain_ReapplyRunsAgain(t *testing.T) {
	var applied []string
	chain := NewChain(recorder("a", OrderBasic, &applied, nil))
	h := newFakeHandle("a.db")

	for range 2 {
		if err := chain.Apply(context.Background(), h); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}
	if len(applied) != 2 {
		t.Errorf("applied %d times, want 2", len(applied))
	}
}

func TestChain_WithReplacesByName(t *testing.T) {
	var applied []string
	base := NewChain(
		recorder("first", OrderCustom, &applied, nil),
		recorder("second", OrderCustom, &applied, nil),
	)

	replaced := base.With(recorder("first", OrderCustom, &applied, nil))
	if replaced.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", replaced.Len())
	}
	// Replacement keeps the original registration slot.
	if got := replaced.Names(); !slices.Equal(got, []string{"first", "second"}) {
		t.Errorf("Names() = %v", got)
	}

	moved := base.With(recorder("second", OrderCipher, &applied, nil))
	if got := moved.Names(); !slices.Equal(got, []string{"second", "first"}) {
		t.Errorf("Names() after order change = %v", got)
	}

	// The original chain is untouched.
	if got := base.Names(); !slices.Equal(got, []string{"first", "second"}) {
		t.Errorf("base Names() = %v, chain was mutated", got)
	}
}

func TestChain_Without(t *testing.T) {
	chain := Default(nil, nil).Without(NameBasic)

	if _, ok := chain.Lookup(NameBasic); ok {
		t.Error("Lookup(basic) found a removed config")
	}
	if got := chain.Names(); !slices.Equal(got, []string{NameTrace, NameCheckpoint}) {
		t.Errorf("Names() = %v", got)
	}

	// Removing a missing name is a no-op.
	if chain.Without("missing").Len() != 2 {
		t.Error("Without(missing) changed the chain")
	}
}

func TestChain_WithNil(t *testing.T) {
	chain := NewChain(nil, Basic(), nil)
	if chain.Len() != 1 {
		t.Errorf("Len() = %d, want 1", chain.Len())
	}
}

func TestChain_ContextCancelled(t *testing.T) {
	var applied []string
	chain := NewChain(recorder("a", OrderBasic, &applied, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := chain.Apply(ctx, newFakeHandle("a.db")); !errors.Is(err, context.Canceled) {
		t.Errorf("Apply() error = %v, want Canceled", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v after cancellation", applied)
	}
}

func TestChain_Nil(t *testing.T) {
	var chain *Chain
	if err := chain.Apply(context.Background(), newFakeHandle("a.db")); err != nil {
		t.Errorf("nil Apply() error = %v", err)
	}
	if chain.Len() != 0 || chain.Configs() != nil {
		t.Error("nil chain should be empty")
	}

	// With on a nil chain starts a new one.
	if chain.With(Basic()).Len() != 1 {
		t.Error("nil.With() did not add the config")
	}
}

func TestOrder_String(t *testing.T) {
	tests := []struct {
		order Order
		want  string
	}{
		{OrderCipher, "cipher"},
		{OrderTrace, "trace"},
		{OrderBasic, "basic"},
		{OrderTokenize, "tokenize"},
		{OrderCheckpoint, "checkpoint"},
		{OrderCustom, "custom"},
		{Order(42), "order(42)"},
	}
	for _, tt := range tests {
		if got := tt.order.String(); got != tt.want {
			t.Errorf("Order(%d).String() = %q, want %q", int(tt.order), got, tt.want)
		}
	}
}
