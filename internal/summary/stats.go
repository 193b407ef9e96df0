package summary

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"netharness/internal/model"
)

// SlotStats is a statistics snapshot of one summary column.
type SlotStats struct {
	Slot  string  `json:"slot"`
	Unit  string  `json:"unit,omitempty"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats covers the rows of a time window.
type Stats struct {
	Rows  int         `json:"rows"`
	From  string      `json:"from,omitempty"`
	To    string      `json:"to,omitempty"`
	Slots []SlotStats `json:"slots"`
}

// Summarize computes per-slot statistics for rows at or after since. A zero
// since covers every row. Sentinel and non-numeric values are not counted.
func Summarize(rows []model.SummaryRow, since time.Time) Stats {
	filtered := make([]model.SummaryRow, 0, len(rows))
	for _, row := range rows {
		if !since.IsZero() {
			ts, err := time.ParseInLocation(model.TimestampLayout, row.Timestamp, since.Location())
			if err != nil || ts.Before(since) {
				continue
			}
		}
		filtered = append(filtered, row)
	}

	st := Stats{Rows: len(filtered)}
	if len(filtered) == 0 {
		return st
	}
	st.From = filtered[0].Timestamp
	st.To = filtered[0].Timestamp
	for _, row := range filtered {
		if row.Timestamp < st.From {
			st.From = row.Timestamp
		}
		if row.Timestamp > st.To {
			st.To = row.Timestamp
		}
	}

	for _, s := range model.Slots {
		values := make([]float64, 0, len(filtered))
		unit := ""
		for _, row := range filtered {
			v, u, ok := ParseValue(row.Get(s))
			if !ok {
				continue
			}
			v, u = normalizeRate(v, u)
			values = append(values, v)
			if unit == "" {
				unit = u
			}
		}
		st.Slots = append(st.Slots, slotStats(s.String(), unit, values))
	}
	return st
}

func slotStats(name, unit string, values []float64) SlotStats {
	out := SlotStats{Slot: name, Unit: unit, Count: len(values)}
	if len(values) == 0 {
		return out
	}

	var sum float64
	minV := math.MaxFloat64
	maxV := -math.MaxFloat64
	for _, v := range values {
		sum += v
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	sort.Float64s(values)
	out.Avg = sum / float64(len(values))
	out.P95 = percentile(values, 0.95)
	out.Min = minV
	out.Max = maxV
	return out
}

// ParseValue splits a slot value such as "94.2 Mbits/sec" into its number
// and unit. ok is false for the sentinel and anything non-numeric.
func ParseValue(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == model.NotAvailable {
		return 0, "", false
	}
	num, unit, _ := strings.Cut(s, " ")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", false
	}
	return v, strings.TrimSpace(unit), true
}

var rateScale = map[string]float64{
	"bits/sec":  1e-6,
	"Kbits/sec": 1e-3,
	"Mbits/sec": 1,
	"Gbits/sec": 1e3,
}

// normalizeRate converts iperf3 bit rates to Mbits/sec. Other units pass
// through unchanged.
func normalizeRate(v float64, unit string) (float64, string) {
	scale, ok := rateScale[unit]
	if !ok {
		return v, unit
	}
	return v * scale, "Mbits/sec"
}

// Numeric returns the slot value as a number, with bit rates in Mbits/sec.
func Numeric(s string) (float64, bool) {
	v, u, ok := ParseValue(s)
	if !ok {
		return 0, false
	}
	v, _ = normalizeRate(v, u)
	return v, true
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
