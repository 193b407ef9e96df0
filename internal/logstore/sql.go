package logstore

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"netharness/internal/model"
)

// recordRow is the table layout of a SQL-backed log. The autoincrement id
// preserves insertion order.
type recordRow struct {
	ID          uint   `gorm:"primaryKey"`
	Timestamp   string `gorm:"size:19;index"`
	TestType    string `gorm:"column:test_type;size:32;index"`
	Destination string
	Proxy       string
	Metric      string `gorm:"size:64"`
	Value       string
	CreatedAt   time.Time
}

func (recordRow) TableName() string {
	return "metric_records"
}

// OpenDB connects to a SQL log database and migrates the record table.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}

	if driver == "sqlite" {
		db.Exec("PRAGMA journal_mode = WAL;")
		db.Exec("PRAGMA busy_timeout = 5000;")
		db.Exec("PRAGMA synchronous = NORMAL;")
	}

	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate metric_records")
	}

	log.Debug().Str("driver", driver).Msg("log database ready")
	return db, nil
}

// SQLPartition is a view of the metric_records table, optionally limited to
// one category.
type SQLPartition struct {
	db       *gorm.DB
	category model.Category
}

// NewSQLPartition returns a partition over db. An empty category covers
// every record in the table.
func NewSQLPartition(db *gorm.DB, category model.Category) *SQLPartition {
	return &SQLPartition{db: db, category: category}
}

func (p *SQLPartition) Name() string {
	if p.category == "" {
		return "metric_records"
	}
	return "metric_records:" + string(p.category)
}

func (p *SQLPartition) Append(rec model.MetricRecord) error {
	row := recordRow{
		Timestamp:   rec.Timestamp,
		TestType:    string(rec.Category),
		Destination: rec.Destination,
		Proxy:       rec.Proxy,
		Metric:      rec.Metric,
		Value:       rec.Value,
	}
	if err := p.db.Create(&row).Error; err != nil {
		return errors.Wrap(err, "insert metric record")
	}
	return nil
}

func (p *SQLPartition) Records() ([]model.MetricRecord, error) {
	var rows []recordRow
	query := p.db.Model(&recordRow{}).Order("id ASC")
	if p.category != "" {
		query = query.Where("test_type = ?", string(p.category))
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "query %s", p.Name())
	}

	items := make([]model.MetricRecord, 0, len(rows))
	for _, r := range rows {
		items = append(items, model.MetricRecord{
			Timestamp:   r.Timestamp,
			Category:    model.Category(r.TestType),
			Destination: r.Destination,
			Proxy:       r.Proxy,
			Metric:      r.Metric,
			Value:       r.Value,
		})
	}
	return items, nil
}
