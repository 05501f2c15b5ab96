package main

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
)

func TestReport(t *testing.T) {
	t.Run("balanced", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 0, report(&buf, nil))
		assert.Contains(t, buf.String(), "ledger balanced")
	})

	t.Run("findings", func(t *testing.T) {
		drifted := uuid.New()
		negative := uuid.New()

		var buf bytes.Buffer
		n := report(&buf, []ledger.Imbalance{
			{UserID: drifted, Balance: 120, LedgerSum: 100},
			{UserID: negative, Balance: -5, LedgerSum: -5},
		})

		assert.Equal(t, 2, n)
		out := buf.String()
		assert.Contains(t, out, drifted.String())
		assert.Contains(t, out, "drift")
		assert.Contains(t, out, negative.String())
		assert.Contains(t, out, "negative")
		assert.Contains(t, out, "2 account(s) out of balance")
	})
}
