package logstore

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"netharness/internal/model"
)

// UnifiedFile is the single log file of the unified layout.
const UnifiedFile = "measurements.csv"

// SplitFile returns the per-category log file name.
func SplitFile(c model.Category) string {
	return string(c) + "_log.csv"
}

// Partition is one ordered, append-only sequence of metric records.
type Partition interface {
	Name() string
	Append(rec model.MetricRecord) error
	// Records returns every record in insertion order. A partition that has
	// never been written returns an empty slice and no error.
	Records() ([]model.MetricRecord, error)
}

// Store presents N partitions as one logical log. Appends are routed by
// category; reads concatenate every source in order.
type Store struct {
	routes   map[model.Category]Partition
	fallback Partition
	sources  []Partition
	db       *gorm.DB

	// manifest is saved on the first append so readers never touch the dir.
	manifestOnce sync.Once
	manifestErr  error
	saveManifest func() error
}

// NewUnified returns a store that appends every record to p. Extra sources
// are read after p, e.g. per-category files left by the split layout.
func NewUnified(p Partition, extra ...Partition) *Store {
	return &Store{
		routes:   map[model.Category]Partition{},
		fallback: p,
		sources:  append([]Partition{p}, extra...),
	}
}

// NewSplit returns a store that appends each category to its own partition.
// legacy sources are read first, followed by parts in model.Categories order.
func NewSplit(parts map[model.Category]Partition, legacy ...Partition) *Store {
	s := &Store{routes: map[model.Category]Partition{}}
	s.sources = append(s.sources, legacy...)
	for _, c := range model.Categories {
		p, ok := parts[c]
		if !ok {
			continue
		}
		s.routes[c] = p
		s.sources = append(s.sources, p)
	}
	return s
}

// Options select the backend and layout of a store.
type Options struct {
	Dir    string
	Layout string // unified|split
	Driver string // csv|sqlite|postgres
	DSN    string
}

// Open builds a store from options. CSV stores read both layouts from Dir
// so logs written before a layout change stay visible. Opening never writes
// to Dir; the manifest is updated by the first Append.
func Open(opts Options) (*Store, error) {
	switch opts.Driver {
	case "", "csv":
		return openCSV(opts)
	case "sqlite", "postgres":
		db, err := OpenDB(opts.Driver, opts.DSN)
		if err != nil {
			return nil, err
		}
		var s *Store
		if opts.Layout == "unified" {
			s = NewUnified(NewSQLPartition(db, ""))
		} else {
			parts := map[model.Category]Partition{}
			for _, c := range model.Categories {
				parts[c] = NewSQLPartition(db, c)
			}
			s = NewSplit(parts)
		}
		s.db = db
		return s, nil
	}
	return nil, errors.Errorf("unsupported storage driver: %s", opts.Driver)
}

func openCSV(opts Options) (*Store, error) {
	unified := NewCSVPartition(filepath.Join(opts.Dir, UnifiedFile))
	parts := map[model.Category]Partition{}
	var split []Partition
	paths := []string{unified.Path()}
	for _, c := range model.Categories {
		p := NewCSVPartition(filepath.Join(opts.Dir, SplitFile(c)))
		parts[c] = p
		split = append(split, p)
		paths = append(paths, p.Path())
	}

	var s *Store
	schema := SchemaSplit
	switch opts.Layout {
	case "unified":
		s = NewUnified(unified, split...)
		schema = SchemaUnified
	case "", "split":
		s = NewSplit(parts, unified)
	default:
		return nil, errors.Errorf("unknown log layout %q", opts.Layout)
	}

	m, err := LoadManifest(opts.Dir)
	if err != nil {
		return nil, err
	}
	if m.SchemaVersion != schema {
		s.saveManifest = func() error {
			if m.SchemaVersion != 0 {
				log.Info().Int("from", m.SchemaVersion).Int("to", schema).Str("dir", opts.Dir).Msg("log layout changed, older partitions stay readable")
			}
			m.SchemaVersion = schema
			m.Layout = layoutName(schema)
			m.Partitions = s.writeNames()
			return errors.Wrap(SaveManifest(opts.Dir, m), "save manifest")
		}
	}

	log.Debug().Strs("paths", paths).Int("schema", schema).Msg("csv log store open")
	return s, nil
}


func layoutName(schema int) string {
	if schema == SchemaUnified {
		return "unified"
	}
	return "split"
}

func (s *Store) writeNames() []string {
	if s.fallback != nil {
		return []string{s.fallback.Name()}
	}
	names := make([]string, 0, len(s.routes))
	for _, c := range model.Categories {
		if p, ok := s.routes[c]; ok {
			names = append(names, p.Name())
		}
	}
	return names
}

// Append routes rec to the partition owning its category.
func (s *Store) Append(rec model.MetricRecord) error {
	p, ok := s.routes[rec.Category]
	if !ok {
		p = s.fallback
	}
	if p == nil {
		return errors.Errorf("no log partition for category %q", rec.Category)
	}
	if s.saveManifest != nil {
		s.manifestOnce.Do(func() { s.manifestErr = s.saveManifest() })
		if s.manifestErr != nil {
			return s.manifestErr
		}
	}
	return p.Append(rec)
}

// Records returns the concatenation of every source in order.
func (s *Store) Records() ([]model.MetricRecord, error) {
	var all []model.MetricRecord
	for _, p := range s.sources {
		items, err := p.Records()
		if err != nil {
			return nil, errors.Wrapf(err, "read partition %s", p.Name())
		}
		all = append(all, items...)
	}
	return all, nil
}

// RecordsByCategory returns the records of one category in log order.
func (s *Store) RecordsByCategory(c model.Category) ([]model.MetricRecord, error) {
	all, err := s.Records()
	if err != nil {
		return nil, err
	}
	var out []model.MetricRecord
	for _, rec := range all {
		if rec.Category == c {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Sources lists the names of the partitions read by Records.
func (s *Store) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for _, p := range s.sources {
		names = append(names, p.Name())
	}
	return names
}

// Close releases the database handle of SQL-backed stores.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
