package probe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"netharness/internal/model"
)

// Kind names the external tool whose output is being parsed.
type Kind string

const (
	KindPing       Kind = "ping"
	KindHTTP       Kind = "http"
	KindWget       Kind = "wget"
	KindIperf3     Kind = "iperf3"
	KindIperf3JSON Kind = "iperf3-json"
)

var (
	pingSummaryRe = regexp.MustCompile(`(?m)(?:rtt|round-trip) min/avg/max(?:/(?:mdev|stddev))? = ([\d.]+)/([\d.]+)/([\d.]+)`)
	realTimeRe    = regexp.MustCompile(`(?m)^real\s+(\d+)m(\d+)(?:\.(\d+))?s\s*$`)
	timeTokenRe   = regexp.MustCompile(`^(\d+)m(\d+)(?:\.(\d+))?s$`)
	receiverRe    = regexp.MustCompile(`(?m)^.*?([\d.]+)\s+([KMGT]?bits/sec).*\breceiver\s*$`)
)

// Parse dispatches to the parser for kind. Unknown kinds yield NotAvailable.
func Parse(kind Kind, out string) string {
	switch kind {
	case KindPing:
		return ParsePing(out)
	case KindHTTP:
		return ParseHTTP(out)
	case KindWget:
		return ParseWgetTime(out)
	case KindIperf3:
		return ParseIperf3(out)
	case KindIperf3JSON:
		return ParseIperf3JSON(out)
	}
	return model.NotAvailable
}

// ParseHTTP passes through the decimal seconds printed by an HTTP client.
func ParseHTTP(out string) string {
	v := strings.TrimSpace(out)
	if v == "" {
		return model.NotAvailable
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return model.NotAvailable
	}
	return v
}

// ParsePing extracts the avg field of a min/avg/max[/mdev] summary line.
func ParsePing(out string) string {
	m := pingSummaryRe.FindStringSubmatch(out)
	if m == nil {
		return model.NotAvailable
	}
	return m[2]
}

// ParseWgetTime converts an MmS.sss duration into total seconds. It reads the
// "real" line printed by the shell time keyword, or a bare duration token.
// Fractional digits are carried over unchanged.
func ParseWgetTime(out string) string {
	m := realTimeRe.FindStringSubmatch(out)
	if m == nil {
		m = timeTokenRe.FindStringSubmatch(strings.TrimSpace(out))
	}
	if m == nil {
		return model.NotAvailable
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return model.NotAvailable
	}
	seconds, err := strconv.Atoi(m[2])
	if err != nil {
		return model.NotAvailable
	}
	whole := minutes*60 + seconds
	if m[3] == "" {
		return strconv.Itoa(whole)
	}
	return fmt.Sprintf("%d.%s", whole, m[3])
}

// ParseIperf3 extracts the receiver-side throughput with its unit suffix.
// With parallel streams the final [SUM] receiver line wins.
func ParseIperf3(out string) string {
	all := receiverRe.FindAllStringSubmatch(out, -1)
	if len(all) == 0 {
		return model.NotAvailable
	}
	m := all[len(all)-1]
	return m[1] + " " + m[2]
}

// ParseIperf3JSON reads the receiver throughput from iperf3 -J output.
func ParseIperf3JSON(out string) string {
	if !gjson.Valid(out) {
		return model.NotAvailable
	}
	result := gjson.Parse(out)
	if result.Get("error").Exists() {
		return model.NotAvailable
	}
	bps := result.Get("end.sum_received.bits_per_second")
	if !bps.Exists() {
		return model.NotAvailable
	}
	return fmt.Sprintf("%.2f Mbits/sec", bps.Float()/1e6)
}
