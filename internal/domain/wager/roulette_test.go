package wager

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTable = Multipliers{"red": 2, "black": 2, "odd": 2, "even": 2, "number": 35, "green": 35}

func fixedSpin(n int) func() (int, error) {
	return func() (int, error) { return n, nil }
}

func intPtr(n int) *int { return &n }

func TestRoulette_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		betType string
		number  *int
		drawn   int
		won     bool
		payout  int64
	}{
		{"red wins on 1", "red", nil, 1, true, 20},
		{"red loses on 2", "red", nil, 2, false, 0},
		{"black wins on 2", "black", nil, 2, true, 20},
		{"zero beats black", "black", nil, 0, false, 0},
		{"zero is not even", "even", nil, 0, false, 0},
		{"odd wins on 35", "odd", nil, 35, true, 20},
		{"green wins on zero", "green", nil, 0, true, 350},
		{"straight number", "number", intPtr(17), 17, true, 350},
		{"straight number miss", "number", intPtr(17), 18, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bet, err := NewRouletteBet(testTable, tt.betType, tt.number)
			require.NoError(t, err)
			bet.spin = fixedSpin(tt.drawn)

			out, err := bet.Evaluate(10)
			require.NoError(t, err)
			assert.Equal(t, tt.won, out.Won)
			assert.Equal(t, tt.payout, out.WinAmount)
			assert.Equal(t, tt.drawn, out.Details["result"])
		})
	}
}

func TestRoulette_ZeroNumberUsesGreenRate(t *testing.T) {
	table := Multipliers{"number": 35, "green": 17}
	bet, err := NewRouletteBet(table, "number", intPtr(0))
	require.NoError(t, err)
	bet.spin = fixedSpin(0)

	out, err := bet.Evaluate(10)
	require.NoError(t, err)
	assert.Equal(t, int64(170), out.WinAmount)
}

func TestRoulette_RejectsUnknownTargets(t *testing.T) {
	_, err := NewRouletteBet(testTable, "purple", nil)
	assert.ErrorIs(t, err, ErrInvalidBet)

	_, err = NewRouletteBet(testTable, "number", nil)
	assert.ErrorIs(t, err, ErrInvalidBet)

	_, err = NewRouletteBet(testTable, "number", intPtr(37))
	assert.ErrorIs(t, err, ErrInvalidBet)

	_, err = NewRouletteBet(Multipliers{"red": 2}, "black", nil)
	assert.ErrorIs(t, err, ErrInvalidBet)
}

func TestRoulette_PayoutOverflow(t *testing.T) {
	bet, err := NewRouletteBet(testTable, "green", nil)
	require.NoError(t, err)
	bet.spin = fixedSpin(0)

	limit := int64(math.MaxInt64 / 35)
	out, err := bet.Evaluate(limit)
	require.NoError(t, err)
	assert.Equal(t, limit*35, out.WinAmount)

	_, err = bet.Evaluate(limit + 1)
	assert.ErrorIs(t, err, ErrInvalidBet)
}

func TestSpinWheelRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		n, err := spinWheel()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.LessOrEqual(t, n, 36)
	}
}
