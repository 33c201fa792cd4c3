package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"limitbook/core/events"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultLimit bounds List when no limit is supplied.
const DefaultLimit = 100

// Record is one committed event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name across drivers.
func (Record) TableName() string { return "event_history" }

// Decoded returns the attribute map of the record.
func (r Record) Decoded() map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(r.Attributes) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Filter narrows List.
type Filter struct {
	Type string
	// After returns records with a sequence above it.
	After uint64
	Limit int
}

// Store persists committed events. It implements events.Emitter so the node
// can forward events into it directly.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to the history database and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("history: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return New(db, log)
}

// New wraps an open gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	store := &Store{db: db, logger: log, now: time.Now}
	var last Record
	res := db.Order("seq desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("history: load sequence: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		store.seq = last.Seq
	}
	return store, nil
}

// Emit implements events.Emitter. Events without an attribute form are
// skipped; write failures are logged because the originating call has already
// committed.
func (s *Store) Emit(evt events.Event) {
	convertible, ok := evt.(events.Convertible)
	if !ok {
		return
	}
	if err := s.Append(context.Background(), convertible); err != nil {
		s.logger.Error("history append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores one event.
func (s *Store) Append(ctx context.Context, evt events.Convertible) error {
	rendered := evt.Event()
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("history: encode attributes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Seq:        s.seq + 1,
		Type:       rendered.Type,
		Attributes: string(attrs),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	s.seq = record.Seq
	return nil
}

// List returns records in commit order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	query := s.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", filter.After)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	var out []Record
	if err := query.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
