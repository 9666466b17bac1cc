package pricing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/finance/types"
)

var (
	// ErrInvalidRule is the parent of every rule validation failure.
	ErrInvalidRule = errors.New("pricing: invalid rule")

	ErrUnknownKind  = fmt.Errorf("%w: unknown resource type", ErrInvalidRule)
	ErrMissingField = fmt.Errorf("%w: missing field", ErrInvalidRule)
	ErrNonNumeric   = fmt.Errorf("%w: non-numeric field", ErrInvalidRule)
	ErrNegative     = fmt.Errorf("%w: negative value", ErrInvalidRule)

	// ErrNoRule reports that no rule prices the requested item.
	ErrNoRule = errors.New("pricing: no rule for item")
)

// Rule prices an Item. An empty State applies to every order state that has
// no rule of its own.
type Rule struct {
	Item  Item        `json:"item"`
	State string      `json:"state,omitempty"`
	Price types.Money `json:"price"`
}

// Validate checks the item shape and that the price is not negative.
func (r Rule) Validate() error {
	if err := r.Item.Validate(); err != nil {
		return err
	}
	if r.Price.IsNegative() {
		return fmt.Errorf("%w: price %s", ErrNegative, r.Price)
	}
	return nil
}

type ruleKey struct {
	item  Item
	state string
}

// Policy is a pricing table. It is safe for concurrent use.
type Policy struct {
	mu    sync.RWMutex
	rules map[ruleKey]types.Money
}

// NewPolicy builds a policy from rules. A later rule for the same
// (item, state) pair replaces an earlier one.
func NewPolicy(rules ...Rule) (*Policy, error) {
	p := &Policy{rules: make(map[ruleKey]types.Money, len(rules))}
	for _, r := range rules {
		if err := p.Set(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Set adds or replaces a rule.
func (p *Policy) Set(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.rules[ruleKey{item: r.Item, state: r.State}] = r.Price
	p.mu.Unlock()
	return nil
}

// Price returns the unit price of item in the given order state. A rule for
// the exact state wins; otherwise the stateless rule for the item applies.
func (p *Policy) Price(item Item, state string) (types.Money, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if state != "" {
		if price, ok := p.rules[ruleKey{item: item, state: state}]; ok {
			return price, nil
		}
	}
	if price, ok := p.rules[ruleKey{item: item}]; ok {
		return price, nil
	}
	if state != "" {
		return types.Zero, fmt.Errorf("%w: %s in state %s", ErrNoRule, item, state)
	}
	return types.Zero, fmt.Errorf("%w: %s", ErrNoRule, item)
}

// Charge prices usage of item for duration d, where prices are quoted per
// unit of time.
//
//	Charge(Compute(2, 4), "", 50*time.Second, time.Second) = 250 when priced at 5.0
func (p *Policy) Charge(item Item, state string, d, unit time.Duration) (types.Money, error) {
	price, err := p.Price(item, state)
	if err != nil {
		return types.Zero, err
	}
	return price.Mul(Units(d, unit)), nil
}

// Units expresses d as a decimal number of unit-sized steps.
func Units(d, unit time.Duration) types.Money {
	if unit <= 0 {
		unit = time.Second
	}
	q := decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(unit)))
	return types.FromDecimal(q)
}

// Rules returns the table in a stable order: by kind, shape, then state.
func (p *Policy) Rules() []Rule {
	p.mu.RLock()
	out := make([]Rule, 0, len(p.rules))
	for k, price := range p.rules {
		out = append(out, Rule{Item: k.item, State: k.state, Price: price})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Item.Kind != b.Item.Kind {
			return a.Item.Kind < b.Item.Kind
		}
		if a.Item.VCPU != b.Item.VCPU {
			return a.Item.VCPU < b.Item.VCPU
		}
		if a.Item.RAM != b.Item.RAM {
			return a.Item.RAM < b.Item.RAM
		}
		if a.Item.Size != b.Item.Size {
			return a.Item.Size < b.Item.Size
		}
		return a.State < b.State
	})
	return out
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rules)
}

// Replace swaps the whole table for the rules of other.
func (p *Policy) Replace(other *Policy) {
	other.mu.RLock()
	next := make(map[ruleKey]types.Money, len(other.rules))
	for k, v := range other.rules {
		next[k] = v
	}
	other.mu.RUnlock()

	p.mu.Lock()
	p.rules = next
	p.mu.Unlock()
}

// Equal reports whether both policies hold the same mapping.
func (p *Policy) Equal(other *Policy) bool {
	a, b := p.Rules(), other.Rules()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Item != b[i].Item || a[i].State != b[i].State || !a[i].Price.Equal(b[i].Price) {
			return false
		}
	}
	return true
}
