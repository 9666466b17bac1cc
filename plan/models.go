package plan

import (
	"maps"

	"github.com/xraph/finance/types"
)

// Option keys understood by the built-in plan kinds.
const (
	OptBillingInterval = "billing_interval"
	OptEnforcementWait = "enforcement_wait"
	OptTimeUnit        = "time_unit"
	OptPricing         = "pricing"
	OptPricingFile     = "pricing_file"
	OptInvoiceDue      = "invoice_due"
	OptEnforcementMode = "enforcement_mode"
	OptInitialCredits  = "initial_credits"
)

// Plan is an installed finance plan. Name is unique across the catalog and
// Kind selects the plan implementation ("prepaid", "postpaid").
type Plan struct {
	types.Entity
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Options map[string]string `json:"options"`
	Running bool              `json:"running"`
}

// Clone returns a copy with its own options map.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Options = maps.Clone(p.Options)
	return &c
}
