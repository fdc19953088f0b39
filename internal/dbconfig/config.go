package dbconfig

import (
	"context"
	"fmt"
)

// Order fixes the position of a Config in a Chain regardless of the order
// in which configs were registered. Lower values run first.
type Order int

// Built-in orders. Values are spaced so custom configs can run in between.
const (
	// OrderCipher runs before anything reads or writes the database file.
	OrderCipher Order = 100

	// OrderTrace attaches sinks before the remaining configs issue queries.
	OrderTrace Order = 200

	// OrderBasic applies locking, synchronous and journal pragmas.
	OrderBasic Order = 300

	// OrderTokenize registers full-text tokenizers.
	OrderTokenize Order = 400

	// OrderCheckpoint installs the committed hook; it is normally last.
	OrderCheckpoint Order = 500

	// OrderCustom is the suggested base for application configs.
	OrderCustom Order = 1000
)

// String returns the name of a built-in order, or its numeric value.
func (o Order) String() string {
	switch o {
	case OrderCipher:
		return "cipher"
	case OrderTrace:
		return "trace"
	case OrderBasic:
		return "basic"
	case OrderTokenize:
		return "tokenize"
	case OrderCheckpoint:
		return "checkpoint"
	case OrderCustom:
		return "custom"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Config is one named, ordered unit of handle setup. Implementations must be
// immutable once constructed so a single Config can be shared by many
// handles.
type Config interface {
	Name() string
	Order() Order
	Apply(ctx context.Context, h Handle) error
}

// ApplyFunc is the signature of a function-backed Config.
type ApplyFunc func(ctx context.Context, h Handle) error

// funcConfig adapts an ApplyFunc to Config.
type funcConfig struct {
	name  string
	order Order
	fn    ApplyFunc
}

// Func returns a Config that runs fn.
func Func(name string, order Order, fn ApplyFunc) Config {
	return funcConfig{name: name, order: order, fn: fn}
}

func (c funcConfig) Name() string { return c.name }
func (c funcConfig) Order() Order { return c.order }

func (c funcConfig) Apply(ctx context.Context, h Handle) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, h)
}
