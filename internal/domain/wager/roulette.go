package wager

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
)

const GameRoulette = "roulette"

// Evaluator decides the outcome of one bet for a game.
type Evaluator interface {
	Game() string
	Evaluate(betAmount int64) (Outcome, error)
}

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true, 18: true,
	19: true, 21: true, 23: true, 25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Multipliers is the roulette payout table keyed by bet type. A number
// bet on zero pays the green rate.
type Multipliers map[string]int64

// RouletteBet is a single-target bet on a 0..36 wheel.
type RouletteBet struct {
	betType    string
	number     int
	multiplier int64
	spin       func() (int, error)
}

// NewRouletteBet validates the target before anything is debited.
func NewRouletteBet(table Multipliers, betType string, number *int) (*RouletteBet, error) {
	betType = strings.ToLower(strings.TrimSpace(betType))
	b := &RouletteBet{betType: betType, spin: spinWheel}

	switch betType {
	case "red", "black", "odd", "even", "green":
	case "number":
		if number == nil || *number < 0 || *number > 36 {
			return nil, fmt.Errorf("%w: number bet needs a number between 0 and 36", ErrInvalidBet)
		}
		b.number = *number
	default:
		return nil, fmt.Errorf("%w: unknown bet type %q", ErrInvalidBet, betType)
	}

	key := betType
	if betType == "number" && b.number == 0 {
		key = "green"
	}
	m, ok := table[key]
	if !ok || m <= 0 {
		return nil, fmt.Errorf("%w: no payout configured for %s", ErrInvalidBet, key)
	}
	b.multiplier = m
	return b, nil
}

func (b *RouletteBet) Game() string { return GameRoulette }

func (b *RouletteBet) Evaluate(betAmount int64) (Outcome, error) {
	if betAmount > math.MaxInt64/b.multiplier {
		return Outcome{}, fmt.Errorf("%w: payout for %d at %dx exceeds the credit range", ErrInvalidBet, betAmount, b.multiplier)
	}
	drawn, err := b.spin()
	if err != nil {
		return Outcome{}, err
	}

	won := b.wins(drawn)
	out := Outcome{
		Won: won,
		Details: map[string]interface{}{
			"bet_type": b.betType,
			"result":   drawn,
			"color":    colorOf(drawn),
		},
	}
	if b.betType == "number" {
		out.Details["number"] = b.number
	}
	if won {
		out.WinAmount = betAmount * b.multiplier
	}
	return out, nil
}

func (b *RouletteBet) wins(n int) bool {
	switch b.betType {
	case "number":
		return n == b.number
	case "green":
		return n == 0
	}
	if n == 0 {
		return false
	}
	switch b.betType {
	case "red":
		return redNumbers[n]
	case "black":
		return !redNumbers[n]
	case "odd":
		return n%2 == 1
	case "even":
		return n%2 == 0
	}
	return false
}

func colorOf(n int) string {
	switch {
	case n == 0:
		return "green"
	case redNumbers[n]:
		return "red"
	default:
		return "black"
	}
}

func spinWheel() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(37))
	if err != nil {
		return 0, fmt.Errorf("spin wheel: %w", err)
	}
	return int(n.Int64()), nil
}
