package pricing

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/finance/types"
)

func TestChargeComputeShape(t *testing.T) {
	p, err := ParseInline("compute,2,4,5.0")
	require.NoError(t, err)

	charge, err := p.Charge(Compute(2, 4), "", 50*time.Second, time.Second)
	require.NoError(t, err)
	assert.True(t, charge.Equal(types.MustParse("250.0")), "got %s", charge)
}

func TestChargeUsesTimeUnit(t *testing.T) {
	p, err := ParseInline("volume,10,2")
	require.NoError(t, err)

	charge, err := p.Charge(Volume(10), "", 90*time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, charge.Equal(types.NewMoney(3)), "got %s", charge)
}

func TestPriceStateFallback(t *testing.T) {
	p, err := ParseInline("compute,2,4,5.0; compute,FULFILLED,2,4,6.5; volume,PENDING,10,0.5")
	require.NoError(t, err)

	price, err := p.Price(Compute(2, 4), "FULFILLED")
	require.NoError(t, err)
	assert.Equal(t, "6.5", price.String())

	price, err = p.Price(Compute(2, 4), "PENDING")
	require.NoError(t, err)
	assert.Equal(t, "5", price.String(), "falls back to the stateless rule")

	price, err = p.Price(Volume(10), "PENDING")
	require.NoError(t, err)
	assert.Equal(t, "0.5", price.String())

	_, err = p.Price(Volume(10), "")
	assert.ErrorIs(t, err, ErrNoRule)

	_, err = p.Price(Compute(4, 8), "")
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name  string
		table string
		want  error
	}{
		{"unknown type", "gpu,1,5.0", ErrUnknownKind},
		{"missing type", ",2,4,5.0", ErrMissingField},
		{"missing price", "compute,2,4", ErrMissingField},
		{"missing shape", "volume,1.0", ErrMissingField},
		{"empty shape field", "compute,,4,5.0", ErrMissingField},
		{"non-numeric shape", "compute,two,4,5.0", ErrNonNumeric},
		{"non-numeric price", "volume,10,cheap", ErrNonNumeric},
		{"negative shape", "volume,-10,1.0", ErrNegative},
		{"negative price", "compute,2,4,-5.0", ErrNegative},
		{"too many fields", "volume,A,B,10,1.0", ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInline(tt.table)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidRule)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, 1, perr.Record)
		})
	}
}

func TestParseReportsRecordNumber(t *testing.T) {
	_, err := Parse(bytes.NewBufferString("# prices\ncompute,2,4,5.0\n\nvolume,x,1\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Record)
}

func TestRoundTrip(t *testing.T) {
	original, err := NewPolicy(
		Rule{Item: Compute(2, 4), Price: types.MustParse("5.0")},
		Rule{Item: Compute(2, 4), State: "FULFILLED", Price: types.MustParse("6.25")},
		Rule{Item: Compute(8, 32), Price: types.MustParse("19.99")},
		Rule{Item: Volume(10), Price: types.MustParse("1")},
		Rule{Item: Volume(100), State: "PENDING", Price: types.Zero},
	)
	require.NoError(t, err)

	t.Run("inline", func(t *testing.T) {
		parsed, err := ParseInline(original.EncodeInline())
		require.NoError(t, err)
		assert.True(t, original.Equal(parsed))
	})

	t.Run("file", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, original.Encode(&buf))
		parsed, err := Parse(&buf)
		require.NoError(t, err)
		assert.True(t, original.Equal(parsed))
	})
}

func TestEmptyTableRoundTrip(t *testing.T) {
	p, err := NewPolicy()
	require.NoError(t, err)

	parsed, err := ParseInline(p.EncodeInline())
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Len())
}

func TestNewPolicyRejectsNegativePrice(t *testing.T) {
	_, err := NewPolicy(Rule{Item: Volume(1), Price: types.NewMoney(-1)})
	assert.ErrorIs(t, err, ErrNegative)
}

func TestReplace(t *testing.T) {
	p, err := ParseInline("volume,10,1")
	require.NoError(t, err)
	next, err := ParseInline("volume,20,2")
	require.NoError(t, err)

	p.Replace(next)

	_, err = p.Price(Volume(10), "")
	assert.ErrorIs(t, err, ErrNoRule)
	price, err := p.Price(Volume(20), "")
	require.NoError(t, err)
	assert.Equal(t, "2", price.String())
}

func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatcherReloadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.csv")
	require.NoError(t, os.WriteFile(path, []byte("volume,10,1\n"), 0o600))

	var latest atomic.Pointer[Policy]
	w, err := NewWatcher(path, func(p *Policy) { latest.Store(p) }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeAtomic(t, path, "volume,10,3\n")

	require.Eventually(t, func() bool {
		p := latest.Load()
		if p == nil {
			return false
		}
		price, err := p.Price(Volume(10), "")
		return err == nil && price.Equal(types.NewMoney(3))
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherKeepsLastGoodTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.csv")
	require.NoError(t, os.WriteFile(path, []byte("volume,10,1\n"), 0o600))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Policy) { calls.Add(1) }, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start())

	writeAtomic(t, path, "volume,ten,1\n")
	time.Sleep(200 * time.Millisecond)

	w.Stop()
	w.Stop()
	assert.Equal(t, int32(0), calls.Load())
}
