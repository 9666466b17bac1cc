package pricing

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// Encode writes the table in the form Parse reads, one record per line.
func (p *Policy) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, r := range p.Rules() {
		if err := cw.Write(r.Fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeInline returns the table in the form ParseInline reads.
func (p *Policy) EncodeInline() string {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	return strings.Join(lines, RecordSeparator)
}

// Fields returns the record form of the rule.
func (r Rule) Fields() []string {
	fields := []string{string(r.Item.Kind)}
	if r.State != "" {
		fields = append(fields, r.State)
	}
	switch r.Item.Kind {
	case KindCompute:
		fields = append(fields, strconv.Itoa(r.Item.VCPU), strconv.Itoa(r.Item.RAM))
	case KindVolume:
		fields = append(fields, strconv.Itoa(r.Item.Size))
	}
	return append(fields, r.Price.String())
}
