package ingestion

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skylinefoods/stocktx/internal/models"
)

// Report field names as the POS OLAP endpoint emits them.
const (
	fieldDepartment      = "Department"
	fieldOperatingDay    = "DateTime.DateTyped"
	fieldProductCode     = "Product.Num"
	fieldProductName     = "Product.Name"
	fieldProductType     = "Product.Type"
	fieldMeasureUnit     = "Product.MeasureUnit"
	fieldDocument        = "Document"
	fieldTransactionKind = "TransactionType"
	fieldTurnover        = "Amount.StoreInOutTyped"
)

// Normalizer turns raw report rows into typed transaction records. Rows
// without a department or a parseable operating day are dropped and counted,
// never failed on.
type Normalizer struct {
	log *logrus.Logger
}

func NewNormalizer(log *logrus.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize maps every raw row, returning the surviving records and the
// number of dropped rows.
func (n *Normalizer) Normalize(rows []models.ReportRow) ([]models.TransactionRecord, int) {
	records := make([]models.TransactionRecord, 0, len(rows))
	dropped := 0

	for i, row := range rows {
		record, ok := n.normalizeRow(i, row)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}

	return records, dropped
}

func (n *Normalizer) normalizeRow(index int, row models.ReportRow) (models.TransactionRecord, bool) {
	department := stringField(row, fieldDepartment)
	if department == "" {
		n.log.Warnf("Dropping report row %d: no department", index)
		return models.TransactionRecord{}, false
	}

	operatingDay, ok := dateField(row, fieldOperatingDay)
	if !ok {
		n.log.Warnf("Dropping report row %d: unusable operating day %q", index, stringField(row, fieldOperatingDay))
		return models.TransactionRecord{}, false
	}

	// Empty document, transaction kind and measure unit stay nil. The
	// aggregator keys off true presence, not a defaulted placeholder.
	return models.TransactionRecord{
		Department:      department,
		OperatingDay:    operatingDay,
		ProductCode:     stringField(row, fieldProductCode),
		ProductName:     optionalField(row, fieldProductName),
		ProductType:     optionalField(row, fieldProductType),
		MeasureUnit:     optionalField(row, fieldMeasureUnit),
		DocumentRef:     optionalField(row, fieldDocument),
		TransactionKind: optionalField(row, fieldTransactionKind),
		Turnover:        decimalField(row, fieldTurnover),
	}, true
}

func stringField(row models.ReportRow, key string) string {
	value, ok := row[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func optionalField(row models.ReportRow, key string) *string {
	if s := stringField(row, key); s != "" {
		return &s
	}
	return nil
}

// dateField truncates a timestamp-like value to its date portion.
func dateField(row models.ReportRow, key string) (time.Time, bool) {
	raw := stringField(row, key)
	if len(raw) > 10 {
		raw = raw[:10]
	}

	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

func decimalField(row models.ReportRow, key string) decimal.Decimal {
	value, ok := row[key]
	if !ok || value == nil {
		return decimal.Zero
	}

	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		if parsed, err := decimal.NewFromString(v); err == nil {
			return parsed
		}
	}
	return decimal.Zero
}
