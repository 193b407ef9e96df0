package summary

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"netharness/internal/model"
)

// Header is the column order of the summary file.
var Header = []string{
	"timestamp",
	"ping_latency",
	"http_direct_latency",
	"http_proxy_latency",
	"wget_direct_time",
	"wget_proxy_time",
	"iperf3_speed",
}

// WriteCSV writes the header followed by rows.
func WriteCSV(w io.Writer, rows []model.SummaryRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, row := range rows {
		record := make([]string, 0, len(Header))
		record = append(record, row.Timestamp)
		for _, s := range model.Slots {
			record = append(record, row.Get(s))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Rebuild aggregates records and replaces the summary file at path. The new
// content is written to a temp file in the same directory and renamed over
// the old one, so readers see either the old or the new table.
func Rebuild(path string, records []model.MetricRecord) ([]model.SummaryRow, error) {
	rows := Aggregate(records)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, errors.Wrap(err, "encode summary")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create summary dir")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, errors.Wrap(err, "create temp summary")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return nil, errors.Wrap(err, "write temp summary")
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(err, "close temp summary")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, errors.Wrap(err, "chmod temp summary")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, errors.Wrapf(err, "replace %s", path)
	}

	log.Debug().Str("path", path).Int("rows", len(rows)).Int("records", len(records)).Msg("summary rebuilt")
	return rows, nil
}

// ReadCSV loads a summary file. A missing file is an empty table.
func ReadCSV(path string) ([]model.SummaryRow, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	rows, err := readCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([]model.SummaryRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == Header[0] {
		start = 1
	}

	rows := make([]model.SummaryRow, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(Header) {
			return nil, errors.Errorf("invalid summary row at line %d", i+1)
		}
		row := model.NewSummaryRow(rec[0])
		for j, s := range model.Slots {
			row.Set(s, rec[j+1])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
