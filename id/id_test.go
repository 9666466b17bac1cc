package id_test

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/id"
)

func TestPrefixes(t *testing.T) {
	assert.Equal(t, id.PrefixInvoice, id.NewInvoiceID().Prefix())
	assert.Equal(t, id.PrefixEvent, id.NewEventID().Prefix())
	assert.NotEqual(t, id.NewInvoiceID().String(), id.NewInvoiceID().String())
}

func TestParseInvoiceID(t *testing.T) {
	original := id.NewInvoiceID()
	parsed, err := id.ParseInvoiceID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original.String(), parsed.String())

	_, err = id.ParseInvoiceID(id.NewEventID().String())
	require.Error(t, err)
	_, err = id.ParseInvoiceID("")
	require.Error(t, err)
	_, err = id.Parse("not an id")
	require.Error(t, err)
}

func TestNilID(t *testing.T) {
	var i id.ID
	assert.True(t, i.IsNil())
	assert.Empty(t, i.String())
	assert.Empty(t, i.Prefix())

	v, err := i.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONAndScan(t *testing.T) {
	original := id.NewInvoiceID()

	data, err := json.Marshal(struct {
		ID id.ID `json:"id"`
	}{original})
	require.NoError(t, err)

	var decoded struct {
		ID id.ID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.String(), decoded.ID.String())

	var scanned id.ID
	require.NoError(t, scanned.Scan([]byte(original.String())))
	assert.Equal(t, original.String(), scanned.String())
	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsNil())
	require.Error(t, scanned.Scan(42))
}

func TestStringOrderFollowsCreation(t *testing.T) {
	var ids []string
	for range 3 {
		ids = append(ids, id.NewInvoiceID().String())
		time.Sleep(2 * time.Millisecond)
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids %v", ids)
}
