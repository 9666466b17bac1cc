// Package pricing maps resource shapes to unit prices.
//
// A Policy is a table of rules. Each rule prices one resource shape, either
// for every order state or for one specific state. Tables are exchanged in a
// delimited text form, one record per rule:
//
//	compute,2,4,5.0              compute shape (vCPU=2, RAM=4) at 5.0
//	compute,FULFILLED,2,4,6.5    same shape while the order is FULFILLED
//	volume,10,1.0                volume of size 10 at 1.0
//	volume,PENDING,10,0.5        same volume while the order is PENDING
//
// Inline tables separate records with ';', files with newlines.
package pricing

import "fmt"

// Kind is the resource type tag of an Item.
type Kind string

const (
	KindCompute Kind = "compute"
	KindVolume  Kind = "volume"
)

// Item is the shape of a billable resource. It is a comparable value and is
// used directly as a pricing-table key. Compute items set VCPU and RAM,
// volume items set Size.
type Item struct {
	Kind Kind `json:"kind"`
	VCPU int  `json:"vcpu,omitempty"`
	RAM  int  `json:"ram,omitempty"`
	Size int  `json:"size,omitempty"`
}

// Compute returns a compute item with the given vCPU count and RAM.
func Compute(vcpu, ram int) Item {
	return Item{Kind: KindCompute, VCPU: vcpu, RAM: ram}
}

// Volume returns a volume item of the given size.
func Volume(size int) Item {
	return Item{Kind: KindVolume, Size: size}
}

// Validate reports whether the item has a known kind and non-negative shape.
func (i Item) Validate() error {
	switch i.Kind {
	case KindCompute:
		if i.VCPU < 0 || i.RAM < 0 {
			return fmt.Errorf("%w: compute shape %d/%d", ErrNegative, i.VCPU, i.RAM)
		}
		if i.Size != 0 {
			return fmt.Errorf("%w: compute item with size", ErrInvalidRule)
		}
	case KindVolume:
		if i.Size < 0 {
			return fmt.Errorf("%w: volume size %d", ErrNegative, i.Size)
		}
		if i.VCPU != 0 || i.RAM != 0 {
			return fmt.Errorf("%w: volume item with compute shape", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, i.Kind)
	}
	return nil
}

func (i Item) String() string {
	switch i.Kind {
	case KindCompute:
		return fmt.Sprintf("compute(vcpu=%d,ram=%d)", i.VCPU, i.RAM)
	case KindVolume:
		return fmt.Sprintf("volume(size=%d)", i.Size)
	default:
		return fmt.Sprintf("%s(?)", i.Kind)
	}
}
