package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildUpsertStatements(t *testing.T) {
	t.Run("should build both family statements when the ledger has a document column", func(t *testing.T) {
		schema := &SchemaSnapshot{TurnoverColumn: "turnover", HasDocument: true}

		statements := buildUpsertStatements("stock_tx_ledger", schema)

		assert.Contains(t, statements.document, `INSERT INTO "stock_tx_ledger"`)
		assert.Contains(t, statements.document, "ON CONFLICT (department, product_num, document, transaction_type) WHERE document IS NOT NULL")
		assert.Contains(t, statements.document, "oper_day = EXCLUDED.oper_day")

		assert.Contains(t, statements.day, "ON CONFLICT (department, oper_day, product_num, transaction_type) WHERE document IS NULL")
		// The day key owns oper_day; the update must never move it.
		assert.NotContains(t, statements.day, "oper_day = EXCLUDED.oper_day")
	})

	t.Run("should build a single plain statement for a ledger without a document column", func(t *testing.T) {
		schema := &SchemaSnapshot{TurnoverColumn: "store_in_out", HasDocument: false}

		statements := buildUpsertStatements("stock_tx_ledger", schema)

		assert.Empty(t, statements.document)
		assert.Contains(t, statements.day, "ON CONFLICT (department, oper_day, product_num, transaction_type)")
		assert.NotContains(t, statements.day, "WHERE document")
		assert.NotContains(t, statements.day, "document")
	})

	t.Run("should write the resolved turnover column", func(t *testing.T) {
		schema := &SchemaSnapshot{TurnoverColumn: "store_in_out", HasDocument: false}

		statements := buildUpsertStatements("stock_tx_ledger", schema)

		assert.Contains(t, statements.day, `"store_in_out" = EXCLUDED."store_in_out"`)
	})
}
