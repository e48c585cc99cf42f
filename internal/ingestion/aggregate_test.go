package ingestion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/skylinefoods/stocktx/internal/models"
)

func strPtr(s string) *string {
	return &s
}

func txRecord(department string, day time.Time, product string, document, kind *string, turnover int64) models.TransactionRecord {
	return models.TransactionRecord{
		Department:      department,
		OperatingDay:    day,
		ProductCode:     product,
		ProductName:     strPtr("Flour"),
		TransactionKind: kind,
		DocumentRef:     document,
		Turnover:        decimal.NewFromInt(turnover),
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	aggregator := NewAggregator()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	writeoff := strPtr("WRITEOFF")

	t.Run("should sum turnovers of records sharing a document key", func(t *testing.T) {
		doc := strPtr("DOC-1")
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", doc, writeoff, 10),
			txRecord("Kitchen", day, "P1", doc, writeoff, -2),
			txRecord("Kitchen", day, "P1", doc, writeoff, 5),
		}

		rows := aggregator.Aggregate(records, true)

		assert.Len(t, rows, 1)
		assert.Equal(t, models.DocumentScoped, rows[0].Family)
		assert.True(t, rows[0].Turnover.Equal(decimal.NewFromInt(13)), "expected 13, got %s", rows[0].Turnover)
	})

	t.Run("should keep document and day families apart even on identical coordinates", func(t *testing.T) {
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", strPtr("DOC-1"), writeoff, 10),
			txRecord("Kitchen", day, "P1", nil, writeoff, 4),
		}

		rows := aggregator.Aggregate(records, true)

		assert.Len(t, rows, 2)
		assert.Equal(t, models.DayScoped, rows[0].Family)
		assert.Nil(t, rows[0].DocumentRef)
		assert.Equal(t, models.DocumentScoped, rows[1].Family)
		assert.Equal(t, "DOC-1", *rows[1].DocumentRef)
	})

	t.Run("should let the later record win on descriptive fields", func(t *testing.T) {
		doc := strPtr("DOC-1")
		first := txRecord("Kitchen", day, "P1", doc, writeoff, 1)
		first.ProductName = strPtr("Old name")
		second := txRecord("Kitchen", day.AddDate(0, 0, 1), "P1", doc, writeoff, 2)
		second.ProductName = strPtr("New name")

		rows := aggregator.Aggregate([]models.TransactionRecord{first, second}, true)

		assert.Len(t, rows, 1)
		assert.Equal(t, "New name", *rows[0].ProductName)
		// The document key carries no operating day, so the later day wins.
		assert.Equal(t, day.AddDate(0, 0, 1), rows[0].OperatingDay)
		assert.True(t, rows[0].Turnover.Equal(decimal.NewFromInt(3)))
	})

	t.Run("should collapse documents into the day key when the ledger has no document column", func(t *testing.T) {
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", strPtr("DOC-1"), writeoff, 10),
			txRecord("Kitchen", day, "P1", strPtr("DOC-2"), writeoff, 4),
			txRecord("Kitchen", day, "P1", nil, writeoff, 1),
		}

		rows := aggregator.Aggregate(records, false)

		assert.Len(t, rows, 1)
		assert.Equal(t, models.DayScoped, rows[0].Family)
		assert.Nil(t, rows[0].DocumentRef)
		assert.True(t, rows[0].Turnover.Equal(decimal.NewFromInt(15)))
	})

	t.Run("should keep separate days as separate day-scoped rows", func(t *testing.T) {
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", nil, writeoff, 1),
			txRecord("Kitchen", day.AddDate(0, 0, 1), "P1", nil, writeoff, 2),
		}

		rows := aggregator.Aggregate(records, true)

		assert.Len(t, rows, 2)
	})

	t.Run("should not treat an empty document reference as document-scoped", func(t *testing.T) {
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", strPtr(""), writeoff, 2),
		}

		rows := aggregator.Aggregate(records, true)

		assert.Len(t, rows, 1)
		assert.Equal(t, models.DayScoped, rows[0].Family)
	})

	t.Run("should produce the same output regardless of input order", func(t *testing.T) {
		records := []models.TransactionRecord{
			txRecord("Kitchen", day, "P1", strPtr("DOC-1"), writeoff, 10),
			txRecord("Bakery", day, "P2", nil, writeoff, 4),
			txRecord("Kitchen", day, "P3", nil, nil, 7),
		}
		reversed := []models.TransactionRecord{records[2], records[1], records[0]}

		assert.Equal(t, aggregator.Aggregate(records, true), aggregator.Aggregate(reversed, true))
	})
}
