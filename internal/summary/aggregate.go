package summary

import (
	"github.com/igrmk/treemap/v2"

	"netharness/internal/model"
)

// Aggregate folds records into one row per distinct timestamp. Records are
// applied in input order and a later record overwrites an earlier one in
// the same slot. Pairs without a summary column are ignored. Rows come out
// in ascending timestamp order.
func Aggregate(records []model.MetricRecord) []model.SummaryRow {
	rows := treemap.New[string, *model.SummaryRow]()
	for _, rec := range records {
		slot, ok := model.SlotFor(rec.Category, rec.Metric)
		if !ok {
			continue
		}
		row, ok := rows.Get(rec.Timestamp)
		if !ok {
			r := model.NewSummaryRow(rec.Timestamp)
			row = &r
			rows.Set(rec.Timestamp, row)
		}
		row.Set(slot, rec.Value)
	}

	out := make([]model.SummaryRow, 0, rows.Len())
	for it := rows.Iterator(); it.Valid(); it.Next() {
		out = append(out, *it.Value())
	}
	return out
}
