package model

// NotAvailable marks a measurement slot with no usable value.
const NotAvailable = "N/A"

// NoProxy is recorded in the proxy column for direct measurements.
const NoProxy = "none"

// TimestampLayout is the second-precision layout shared by log and summary rows.
// Lexical order of formatted timestamps equals chronological order.
const TimestampLayout = "2006-01-02 15:04:05"

// Category is the test type a metric record belongs to.
type Category string

const (
	CategoryLatency Category = "latency"
	CategoryWget    Category = "wget"
	CategoryIperf3  Category = "iperf3"
)

// Categories lists every known category in partition order.
var Categories = []Category{CategoryLatency, CategoryWget, CategoryIperf3}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Metric names emitted by the probes.
const (
	MetricPing        = "ping"
	MetricHTTPDirect  = "http_direct"
	MetricHTTPProxy   = "http_proxy"
	MetricStunRTT     = "stun_rtt"
	MetricDirectTime  = "direct_time"
	MetricProxyTime   = "proxy_time"
	MetricDirectSpeed = "direct_speed"
)

// MetricRecord is a single raw measurement as appended to the log.
type MetricRecord struct {
	Timestamp   string   `json:"timestamp"`
	Category    Category `json:"test_type"`
	Destination string   `json:"destination"`
	Proxy       string   `json:"proxy"`
	Metric      string   `json:"metric"`
	Value       string   `json:"value"`
}

// SummaryRow holds the six fixed measurement slots for one timestamp.
type SummaryRow struct {
	Timestamp         string `json:"timestamp"`
	PingLatency       string `json:"ping_latency"`
	HTTPDirectLatency string `json:"http_direct_latency"`
	HTTPProxyLatency  string `json:"http_proxy_latency"`
	WgetDirectTime    string `json:"wget_direct_time"`
	WgetProxyTime     string `json:"wget_proxy_time"`
	Iperf3Speed       string `json:"iperf3_speed"`
}

// NewSummaryRow returns a row for ts with every slot set to NotAvailable.
func NewSummaryRow(ts string) SummaryRow {
	return SummaryRow{
		Timestamp:         ts,
		PingLatency:       NotAvailable,
		HTTPDirectLatency: NotAvailable,
		HTTPProxyLatency:  NotAvailable,
		WgetDirectTime:    NotAvailable,
		WgetProxyTime:     NotAvailable,
		Iperf3Speed:       NotAvailable,
	}
}

// Slot identifies one of the fixed summary columns.
type Slot int

const (
	SlotPingLatency Slot = iota
	SlotHTTPDirectLatency
	SlotHTTPProxyLatency
	SlotWgetDirectTime
	SlotWgetProxyTime
	SlotIperf3Speed
)

// Slots lists every slot in column order.
var Slots = []Slot{
	SlotPingLatency,
	SlotHTTPDirectLatency,
	SlotHTTPProxyLatency,
	SlotWgetDirectTime,
	SlotWgetProxyTime,
	SlotIperf3Speed,
}

var slotNames = [...]string{
	"ping_latency",
	"http_direct_latency",
	"http_proxy_latency",
	"wget_direct_time",
	"wget_proxy_time",
	"iperf3_speed",
}

// String returns the summary column name of s.
func (s Slot) String() string {
	if s < 0 || int(s) >= len(slotNames) {
		return "unknown"
	}
	return slotNames[s]
}

type slotKey struct {
	category Category
	metric   string
}

var slotByKey = map[slotKey]Slot{
	{CategoryLatency, MetricPing}:       SlotPingLatency,
	{CategoryLatency, MetricHTTPDirect}: SlotHTTPDirectLatency,
	{CategoryLatency, MetricHTTPProxy}:  SlotHTTPProxyLatency,
	{CategoryWget, MetricDirectTime}:    SlotWgetDirectTime,
	{CategoryWget, MetricProxyTime}:     SlotWgetProxyTime,
	{CategoryIperf3, MetricDirectSpeed}: SlotIperf3Speed,
}

// SlotFor resolves the summary slot of a (category, metric) pair.
// ok is false for pairs that have no summary column.
func SlotFor(category Category, metric string) (Slot, bool) {
	s, ok := slotByKey[slotKey{category, metric}]
	return s, ok
}

// Get returns the value stored in slot s.
func (r SummaryRow) Get(s Slot) string {
	switch s {
	case SlotPingLatency:
		return r.PingLatency
	case SlotHTTPDirectLatency:
		return r.HTTPDirectLatency
	case SlotHTTPProxyLatency:
		return r.HTTPProxyLatency
	case SlotWgetDirectTime:
		return r.WgetDirectTime
	case SlotWgetProxyTime:
		return r.WgetProxyTime
	case SlotIperf3Speed:
		return r.Iperf3Speed
	}
	return NotAvailable
}

// Set overwrites slot s with value.
func (r *SummaryRow) Set(s Slot, value string) {
	switch s {
	case SlotPingLatency:
		r.PingLatency = value
	case SlotHTTPDirectLatency:
		r.HTTPDirectLatency = value
	case SlotHTTPProxyLatency:
		r.HTTPProxyLatency = value
	case SlotWgetDirectTime:
		r.WgetDirectTime = value
	case SlotWgetProxyTime:
		r.WgetProxyTime = value
	case SlotIperf3Speed:
		r.Iperf3Speed = value
	}
}
