package logstore

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"netharness/internal/model"
)

// Header is the mandatory first row of every log file.
var Header = []string{"timestamp", "test_type", "destination", "proxy", "metric", "value"}

// CSVPartition is an append-only CSV log file.
type CSVPartition struct {
	path string
}

func NewCSVPartition(path string) *CSVPartition {
	return &CSVPartition{path: path}
}

func (p *CSVPartition) Name() string {
	return filepath.Base(p.path)
}

// Path returns the file backing the partition.
func (p *CSVPartition) Path() string {
	return p.path
}

// Append writes rec as one line, preceded by the header when the file is new.
// The bytes go out in a single write on an O_APPEND descriptor so a record
// line is never split by another appender.
func (p *CSVPartition) Append(rec model.MetricRecord) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(err, "create log dir")
	}

	file, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", p.path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", p.path)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			return err
		}
	}
	if err := writer.Write(toRow(rec)); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "append %s", p.path)
	}
	return nil
}

// Records reads every record in file order. A missing file is an empty log.
func (p *CSVPartition) Records() ([]model.MetricRecord, error) {
	file, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", p.path)
	}
	defer file.Close()

	items, err := readCSV(file, p.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", p.path)
	}
	return items, nil
}

// readCSV parses one record per physical line. A line that fails to parse
// is skipped on its own, so an unterminated quote never swallows the rows
// after it.
func readCSV(r io.Reader, source string) ([]model.MetricRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var items []model.MetricRecord
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			log.Debug().Err(err).Str("source", source).Int("line", n).Msg("skip malformed log row")
			continue
		}
		if n == 1 && len(rec) > 0 && rec[0] == Header[0] {
			continue
		}
		if len(rec) < len(Header) {
			log.Debug().Str("source", source).Int("line", n).Int("fields", len(rec)).Msg("skip short log row")
			continue
		}
		items = append(items, fromRow(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func parseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	return reader.Read()
}

// lineBreaks keeps every field on one line so a record is exactly one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func toRow(rec model.MetricRecord) []string {
	row := []string{
		rec.Timestamp,
		string(rec.Category),
		rec.Destination,
		rec.Proxy,
		rec.Metric,
		rec.Value,
	}
	for i, f := range row {
		row[i] = lineBreaks.Replace(f)
	}
	return row
}

func fromRow(row []string) model.MetricRecord {
	return model.MetricRecord{
		Timestamp:   row[0],
		Category:    model.Category(row[1]),
		Destination: row[2],
		Proxy:       row[3],
		Metric:      row[4],
		Value:       row[5],
	}
}
