package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netharness/internal/model"
)

func rec(ts string, c model.Category, metric, value string) model.MetricRecord {
	return model.MetricRecord{
		Timestamp:   ts,
		Category:    c,
		Destination: "example.com",
		Proxy:       model.NoProxy,
		Metric:      metric,
		Value:       value,
	}
}

func TestCSVPartition_HeaderWrittenOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "latency_log.csv")
	p := NewCSVPartition(path)

	require.NoError(t, p.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "12.3")))
	require.NoError(t, p.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricHTTPDirect, "0.25")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Equal(t, "2024-01-01 10:00:00,latency,example.com,none,ping,12.3", lines[1])
	assert.Equal(t, 1, strings.Count(string(data), "timestamp,test_type"))

	items, err := p.Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.MetricHTTPDirect, items[1].Metric)
	assert.Equal(t, "0.25", items[1].Value)
}

func TestCSVPartition_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	p := NewCSVPartition(filepath.Join(t.TempDir(), "nope.csv"))
	items, err := p.Records()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCSVPartition_SkipsMalformedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "measurements.csv")
	content := strings.Join([]string{
		"timestamp,test_type,destination,proxy,metric,value",
		"2024-01-01 10:00:00,latency,example.com,none,ping,12.3",
		"garbage",
		"2024-01-01 10:00:00,wget,example.com,none,direct_time,5.2",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := NewCSVPartition(path).Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.CategoryWget, items[1].Category)
}

func TestCSVPartition_UnterminatedQuoteKeepsLaterRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latency_log.csv")
	content := strings.Join([]string{
		"timestamp,test_type,destination,proxy,metric,value",
		`2024-01-01 10:00:00,latency,"broken,none,ping,1`,
		"2024-01-01 10:15:00,latency,example.com,none,ping,12.3",
		`2024-01-01 10:30:00,iperf3,example.com,none,direct_speed,"1,024 Kbits/sec"`,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := NewCSVPartition(path).Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "12.3", items[0].Value)
	assert.Equal(t, "1,024 Kbits/sec", items[1].Value)
}

func TestCSVPartition_LineBreaksStayOnOneLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "measurements.csv")
	p := NewCSVPartition(path)
	require.NoError(t, p.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "12.3\r\nrtt")))
	require.NoError(t, p.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricHTTPDirect, "0.25")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3)

	items, err := p.Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "12.3 rtt", items[0].Value)
}

func TestCSVPartition_ValueWithComma(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "measurements.csv")
	p := NewCSVPartition(path)
	want := rec("2024-01-01 10:00:00", model.CategoryIperf3, model.MetricDirectSpeed, "1,024 Kbits/sec")
	require.NoError(t, p.Append(want))

	items, err := p.Records()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, want, items[0])
}

func TestStore_SplitRoutesByCategory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Layout: "split"})
	require.NoError(t, err)

	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryIperf3, model.MetricDirectSpeed, "94.2 Mbits/sec")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "12.3")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryWget, model.MetricDirectTime, "5.2")))

	for _, c := range model.Categories {
		assert.FileExists(t, filepath.Join(dir, SplitFile(c)))
	}
	assert.NoFileExists(t, filepath.Join(dir, UnifiedFile))

	items, err := s.Records()
	require.NoError(t, err)
	require.Len(t, items, 3)
	// latency, wget, iperf3 partition order
	assert.Equal(t, model.CategoryLatency, items[0].Category)
	assert.Equal(t, model.CategoryWget, items[1].Category)
	assert.Equal(t, model.CategoryIperf3, items[2].Category)

	assert.Equal(t, []string{UnifiedFile, "latency_log.csv", "wget_log.csv", "iperf3_log.csv"}, s.Sources())
}

func TestStore_SplitRejectsUnknownCategory(t *testing.T) {
	t.Parallel()

	s, err := Open(Options{Dir: t.TempDir(), Layout: "split"})
	require.NoError(t, err)
	assert.Error(t, s.Append(rec("2024-01-01 10:00:00", "dns", "lookup", "1")))
}

func TestStore_UnifiedKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Layout: "unified"})
	require.NoError(t, err)

	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryIperf3, model.MetricDirectSpeed, "94.2 Mbits/sec")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "12.3")))

	assert.FileExists(t, filepath.Join(dir, UnifiedFile))
	items, err := s.Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.CategoryIperf3, items[0].Category)
	assert.Equal(t, model.CategoryLatency, items[1].Category)
}

func TestStore_LayoutChangeKeepsOldPartitionsReadable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	unified, err := Open(Options{Dir: dir, Layout: "unified"})
	require.NoError(t, err)
	require.NoError(t, unified.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "10")))

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, SchemaUnified, m.SchemaVersion)
	assert.Equal(t, []string{UnifiedFile}, m.Partitions)

	split, err := Open(Options{Dir: dir, Layout: "split"})
	require.NoError(t, err)
	require.NoError(t, split.Append(rec("2024-01-01 10:15:00", model.CategoryLatency, model.MetricPing, "11")))

	items, err := split.Records()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "10", items[0].Value)
	assert.Equal(t, "11", items[1].Value)

	m, err = LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, SchemaSplit, m.SchemaVersion)
	assert.Equal(t, "split", m.Layout)
	assert.Len(t, m.Partitions, 3)
}

func TestStore_OpenIsReadOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Layout: "unified"})
	require.NoError(t, err)
	items, err := s.Records()
	require.NoError(t, err)
	assert.Empty(t, items)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "opening and reading must not write to the log dir")

	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "10")))
	assert.FileExists(t, filepath.Join(dir, ManifestName))
}

func TestStore_UnknownLayoutAndDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Options{Dir: t.TempDir(), Layout: "sharded"})
	assert.Error(t, err)

	_, err = Open(Options{Dir: t.TempDir(), Driver: "mysql"})
	assert.Error(t, err)
}

func TestStore_RecordsByCategory(t *testing.T) {
	t.Parallel()

	s, err := Open(Options{Dir: t.TempDir(), Layout: "unified"})
	require.NoError(t, err)
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "10")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryWget, model.MetricDirectTime, "5.2")))

	items, err := s.RecordsByCategory(model.CategoryWget)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "5.2", items[0].Value)
}

func TestStore_SQLite(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "netharness.db")
	s, err := Open(Options{Driver: "sqlite", DSN: dsn, Layout: "split"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryIperf3, model.MetricDirectSpeed, "94.2 Mbits/sec")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricPing, "12.3")))
	require.NoError(t, s.Append(rec("2024-01-01 10:00:00", model.CategoryLatency, model.MetricHTTPDirect, "0.25")))

	items, err := s.Records()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, model.MetricPing, items[0].Metric)
	assert.Equal(t, model.MetricHTTPDirect, items[1].Metric)
	assert.Equal(t, model.MetricDirectSpeed, items[2].Metric)
	assert.Equal(t, model.NoProxy, items[2].Proxy)
}

func TestManifest_MissingIsEmpty(t *testing.T) {
	t.Parallel()

	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, m.SchemaVersion)
	assert.Empty(t, m.Partitions)
}
