package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Money
		want string
	}{
		{"add", NewMoney(10).Add(FromFloat(2.5)), "12.5"},
		{"sub below zero", NewMoney(10).Sub(NewMoney(12)), "-2"},
		{"mul price by time", FromFloat(5.0).Mul(NewMoney(50)), "250"},
		{"negate", NewMoney(3).Negate(), "-3"},
		{"sum", Sum(NewMoney(1), MustParse("0.1"), MustParse("0.2")), "1.3"},
		{"sum empty", Sum(), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.got.Equal(MustParse(tt.want)), "got %s, want %s", tt.got, tt.want)
		})
	}
}

func TestMoneyComparisons(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.False(t, Zero.IsNegative())
	assert.True(t, NewMoney(-1).IsNegative())
	assert.True(t, NewMoney(1).IsPositive())
	assert.True(t, NewMoney(1).LessThan(NewMoney(2)))
	assert.True(t, NewMoney(3).GreaterThan(NewMoney(2)))
	assert.True(t, MustParse("5").Equal(MustParse("5.00")))
}

func TestMoneyParseRejectsGarbage(t *testing.T) {
	_, err := Parse("five")
	require.Error(t, err)
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(MustParse("12.75"))
	require.NoError(t, err)
	assert.JSONEq(t, `"12.75"`, string(data))

	var fromString Money
	require.NoError(t, json.Unmarshal([]byte(`"-3.5"`), &fromString))
	assert.True(t, fromString.Equal(FromFloat(-3.5)))

	var fromNumber Money
	require.NoError(t, json.Unmarshal([]byte(`42`), &fromNumber))
	assert.True(t, fromNumber.Equal(NewMoney(42)))
}
