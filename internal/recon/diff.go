// Package recon computes fact-versus-plan discrepancies for production
// batches. It is pure: reading and writing the tables is the store's job.
package recon

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skylinefoods/stocktx/internal/models"
)

// batchAccumulator collects both sides of one (department, product,
// anchor day, production day) batch. A missing side stays zero.
type batchAccumulator struct {
	department    string
	productCode   string
	anchorDay     time.Time
	productionDay time.Time
	productName   *string
	fact          decimal.Decimal
	plan          decimal.Decimal
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func scopeKey(department, productCode string, day time.Time) string {
	return department + "\x00" + productCode + "\x00" + dayKey(day)
}

// BuildDiff joins anchor facts against lifecycle plans and returns the
// per-batch detail rows plus per-product totals, both sorted.
//
// Plans participate only within anchored scopes: a lifecycle row whose
// (department, product, snapshot day) matches no anchor at all is ignored.
// Inside a scope the join is full outer at production-day granularity, so a
// batch present on one side only still yields a row with the missing side
// at zero.
func BuildDiff(facts []models.AnchorFact, plans []models.LifecyclePlanRow) ([]models.DiffDetailRow, []models.DiffTotalRow) {
	batches := make(map[string]*batchAccumulator)
	scopeNames := make(map[string]*string)

	for i := range facts {
		fact := &facts[i]
		scope := scopeKey(fact.Department, fact.ProductCode, fact.AnchorDay)
		key := scope + "\x00" + dayKey(fact.ProductionDay)

		acc, ok := batches[key]
		if !ok {
			acc = &batchAccumulator{
				department:    fact.Department,
				productCode:   fact.ProductCode,
				anchorDay:     fact.AnchorDay,
				productionDay: fact.ProductionDay,
			}
			batches[key] = acc
		}
		acc.fact = acc.fact.Add(fact.FactQty)
		if acc.productName == nil {
			acc.productName = fact.ProductName
		}

		if name, seen := scopeNames[scope]; !seen || (name == nil && fact.ProductName != nil) {
			scopeNames[scope] = fact.ProductName
		}
	}

	for i := range plans {
		plan := &plans[i]
		scope := scopeKey(plan.Department, plan.ProductCode, plan.SnapshotDay)
		scopeName, anchored := scopeNames[scope]
		if !anchored {
			continue
		}

		key := scope + "\x00" + dayKey(plan.ProductionDay)
		acc, ok := batches[key]
		if !ok {
			acc = &batchAccumulator{
				department:    plan.Department,
				productCode:   plan.ProductCode,
				anchorDay:     plan.SnapshotDay,
				productionDay: plan.ProductionDay,
				productName:   scopeName,
			}
			batches[key] = acc
		}
		acc.plan = acc.plan.Add(plan.ClosingQty)
	}

	details := make([]models.DiffDetailRow, 0, len(batches))
	for _, acc := range batches {
		details = append(details, models.DiffDetailRow{
			Department:    acc.department,
			ProductCode:   acc.productCode,
			AnchorDay:     acc.anchorDay,
			ProductionDay: acc.productionDay,
			ProductName:   acc.productName,
			FactQty:       acc.fact,
			PlanQty:       acc.plan,
			DiffQty:       acc.fact.Sub(acc.plan),
		})
	}

	sort.Slice(details, func(i, j int) bool {
		a, b := &details[i], &details[j]
		if a.Department != b.Department {
			return a.Department < b.Department
		}
		if a.ProductCode != b.ProductCode {
			return a.ProductCode < b.ProductCode
		}
		if !a.AnchorDay.Equal(b.AnchorDay) {
			return a.AnchorDay.Before(b.AnchorDay)
		}
		return a.ProductionDay.Before(b.ProductionDay)
	})

	return details, totalize(details)
}

// totalize folds sorted detail rows into one row per (department, product,
// anchor day).
func totalize(details []models.DiffDetailRow) []models.DiffTotalRow {
	totals := make([]models.DiffTotalRow, 0)
	for i := range details {
		detail := &details[i]

		if last := len(totals) - 1; last >= 0 &&
			totals[last].Department == detail.Department &&
			totals[last].ProductCode == detail.ProductCode &&
			totals[last].AnchorDay.Equal(detail.AnchorDay) {
			total := &totals[last]
			total.FactQty = total.FactQty.Add(detail.FactQty)
			total.PlanQty = total.PlanQty.Add(detail.PlanQty)
			total.DiffQty = total.DiffQty.Add(detail.DiffQty)
			if total.ProductName == nil {
				total.ProductName = detail.ProductName
			}
			continue
		}

		totals = append(totals, models.DiffTotalRow{
			Department:  detail.Department,
			ProductCode: detail.ProductCode,
			AnchorDay:   detail.AnchorDay,
			ProductName: detail.ProductName,
			FactQty:     detail.FactQty,
			PlanQty:     detail.PlanQty,
			DiffQty:     detail.DiffQty,
		})
	}

	return totals
}
