package worker

import (
	"fmt"
	"time"

	"github.com/xraph/finance"
	"github.com/xraph/finance/pricing"
	"github.com/xraph/finance/types"
	"github.com/xraph/finance/usage"
)

// Price turns usage records into charges for the window [from, to). Each
// record yields one charge per order state it spent time in, or a single
// stateless charge. Usage the policy has no price for fails the whole call
// with ErrPricingIncomplete so that nothing is billed partially.
func Price(policy *pricing.Policy, records []usage.Record, from, to time.Time, unit time.Duration) ([]finance.Charge, error) {
	var charges []finance.Charge
	for _, rec := range records {
		for _, span := range rec.Spans(from, to) {
			unitPrice, err := policy.Price(span.Item, span.State)
			if err != nil {
				return nil, fmt.Errorf("%w: %s state %q: %w", finance.ErrPricingIncomplete, span.Item, span.State, err)
			}
			units := pricing.Units(span.Duration, unit)
			charges = append(charges, finance.Charge{
				Item:      span.Item,
				State:     span.State,
				Units:     units,
				UnitPrice: unitPrice,
				Amount:    unitPrice.Mul(units),
			})
		}
	}
	return charges, nil
}

// Total sums the amounts of charges.
func Total(charges []finance.Charge) types.Money {
	total := types.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total
}
