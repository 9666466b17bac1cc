// Package id defines the identifiers of finance records that have no natural
// key. Users are keyed by (user, provider) and plans by name; invoices and
// lifecycle events carry a TypeID ("inv_01h2x...", "fevt_01h2x...").
//
// TypeIDs embed a UUIDv7, so their string form sorts by creation time. Stores
// rely on this to list a user's invoices newest first.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the entity tag of a TypeID.
type Prefix string

const (
	PrefixInvoice Prefix = "inv"
	PrefixEvent   Prefix = "fevt"
)

// ID is a TypeID. The zero value is the nil ID and encodes as "".
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the zero-value ID.
var Nil ID

// InvoiceID identifies an invoice.
type InvoiceID = ID

// EventID identifies a lifecycle event.
type EventID = ID

// New generates an ID. It panics on an invalid prefix, which is a
// programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

// NewInvoiceID generates an invoice ID.
func NewInvoiceID() InvoiceID { return New(PrefixInvoice) }

// NewEventID generates an event ID.
func NewEventID() EventID { return New(PrefixEvent) }

// Parse parses any TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseInvoiceID parses s and requires the invoice prefix.
func ParseInvoiceID(s string) (InvoiceID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != PrefixInvoice {
		return Nil, fmt.Errorf("id: %q is not an invoice id", s)
	}
	return parsed, nil
}

func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the entity tag, or "" for the nil ID.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.set }

func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value stores the nil ID as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.String(), nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	}
	return fmt.Errorf("id: cannot scan %T", src)
}
