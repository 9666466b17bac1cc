package pricing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xraph/finance/types"
)

// RecordSeparator separates records in an inline table.
const RecordSeparator = ";"

// ParseError locates a rule validation failure in a table.
type ParseError struct {
	Record int // 1-based
	Text   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pricing: record %d (%q): %v", e.Record, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads a newline-separated table. Blank lines and lines starting with
// '#' are ignored.
func Parse(r io.Reader) (*Policy, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	p, _ := NewPolicy()
	n := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		n++
		if err != nil {
			return nil, &ParseError{Record: n, Err: fmt.Errorf("%w: %v", ErrInvalidRule, err)}
		}
		rule, err := ParseRule(fields)
		if err != nil {
			return nil, &ParseError{Record: n, Text: strings.Join(fields, ","), Err: err}
		}
		if err := p.Set(rule); err != nil {
			return nil, &ParseError{Record: n, Text: strings.Join(fields, ","), Err: err}
		}
	}
}

// ParseInline reads a ';'-separated table such as
// "compute,2,4,5.0;volume,10,1.0".
func ParseInline(s string) (*Policy, error) {
	records := strings.Split(s, RecordSeparator)
	return Parse(strings.NewReader(strings.Join(records, "\n")))
}

// LoadFile parses the table stored at path.
func LoadFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// ParseRule decodes one record: [type, state?, shape..., price]. The optional
// state is recognized by the field count of the type.
func ParseRule(fields []string) (Rule, error) {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) == 0 || fields[0] == "" {
		return Rule{}, fmt.Errorf("%w: resource type", ErrMissingField)
	}

	kind := Kind(strings.ToLower(fields[0]))
	var shapeFields int
	switch kind {
	case KindCompute:
		shapeFields = 2
	case KindVolume:
		shapeFields = 1
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownKind, fields[0])
	}

	rest := fields[1:]
	var state string
	switch len(rest) {
	case shapeFields + 1:
	case shapeFields + 2:
		state, rest = rest[0], rest[1:]
		if state == "" {
			return Rule{}, fmt.Errorf("%w: order state", ErrMissingField)
		}
	default:
		if len(rest) < shapeFields+1 {
			return Rule{}, fmt.Errorf("%w: %s needs %d shape fields and a price", ErrMissingField, kind, shapeFields)
		}
		return Rule{}, fmt.Errorf("%w: too many fields for %s", ErrInvalidRule, kind)
	}

	shape := make([]int, shapeFields)
	for i := 0; i < shapeFields; i++ {
		v, err := parseNonNegativeInt(rest[i])
		if err != nil {
			return Rule{}, err
		}
		shape[i] = v
	}

	price, err := parsePrice(rest[shapeFields])
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{State: state, Price: price}
	if kind == KindCompute {
		rule.Item = Compute(shape[0], shape[1])
	} else {
		rule.Item = Volume(shape[0])
	}
	return rule, nil
}

func parseNonNegativeInt(s string) (int, error) {
	if s == "" {
		return 0, ErrMissingField
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNonNumeric, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, v)
	}
	return v, nil
}

func parsePrice(s string) (types.Money, error) {
	if s == "" {
		return types.Zero, fmt.Errorf("%w: price", ErrMissingField)
	}
	price, err := types.Parse(s)
	if err != nil {
		return types.Zero, fmt.Errorf("%w: %q", ErrNonNumeric, s)
	}
	if price.IsNegative() {
		return types.Zero, fmt.Errorf("%w: price %s", ErrNegative, s)
	}
	return price, nil
}
