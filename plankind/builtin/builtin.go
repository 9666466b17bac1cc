// Package builtin registers the plan kinds shipped with the engine.
package builtin

import (
	"github.com/xraph/finance"
	"github.com/xraph/finance/plankind/postpaid"
	"github.com/xraph/finance/plankind/prepaid"
)

// Kinds maps kind names to their constructors.
func Kinds() map[string]finance.KindConstructor {
	return map[string]finance.KindConstructor{
		prepaid.Name:  prepaid.New,
		postpaid.Name: postpaid.New,
	}
}

// Options returns engine options registering every built-in kind.
func Options() []finance.Option {
	kinds := Kinds()
	opts := make([]finance.Option, 0, len(kinds))
	for name, ctor := range kinds {
		opts = append(opts, finance.WithKind(name, ctor))
	}
	return opts
}
