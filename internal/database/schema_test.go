package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skylinefoods/stocktx/internal/models"
)

func TestResolveColumn(t *testing.T) {
	t.Run("should pick the first candidate present on the table", func(t *testing.T) {
		columns := map[string]bool{"store_in_out": true, "amount": true}

		name, err := resolveColumn("stock_tx_ledger", columns, turnoverCandidates)

		assert.NoError(t, err)
		assert.Equal(t, "store_in_out", name)
	})

	t.Run("should prefer an earlier candidate over a later one", func(t *testing.T) {
		columns := map[string]bool{"amount": true, "turnover": true}

		name, err := resolveColumn("stock_tx_ledger", columns, turnoverCandidates)

		assert.NoError(t, err)
		assert.Equal(t, "turnover", name)
	})

	t.Run("should fail with a schema mismatch when no candidate exists", func(t *testing.T) {
		columns := map[string]bool{"quantity": true}

		_, err := resolveColumn("stock_tx_ledger", columns, turnoverCandidates)

		var mismatch *models.SchemaMismatchError
		assert.Error(t, err)
		assert.True(t, errors.As(err, &mismatch))
		assert.Equal(t, "stock_tx_ledger", mismatch.Table)
		assert.Equal(t, turnoverCandidates, mismatch.Candidates)
	})

	t.Run("should resolve discrepancy quantity columns from their own candidate lists", func(t *testing.T) {
		columns := map[string]bool{"fact_quantity": true, "plan_qty": true, "diff_quantity": true}

		fact, err := resolveColumn("production_diff_detail", columns, factCandidates)
		assert.NoError(t, err)
		assert.Equal(t, "fact_quantity", fact)

		planColumn, err := resolveColumn("production_diff_detail", columns, planCandidates)
		assert.NoError(t, err)
		assert.Equal(t, "plan_qty", planColumn)

		diff, err := resolveColumn("production_diff_detail", columns, diffCandidates)
		assert.NoError(t, err)
		assert.Equal(t, "diff_quantity", diff)
	})
}
