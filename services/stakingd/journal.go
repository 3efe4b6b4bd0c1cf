package stakingd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"lukechampine.com/blake3"

	"stakevault/core/events"
)

// JournalEntry is one persisted vault event.
type JournalEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Digest     string    `gorm:"size:64;uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Account    string    `gorm:"index"`
	Attributes string    `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

// TableName pins the journal table name.
func (JournalEntry) TableName() string { return "vault_events" }

// JournalFilter narrows a journal listing.
type JournalFilter struct {
	Account string
	Type    string
	After   uint64
	Limit   int
}

// Journal persists emitted vault events through gorm. It satisfies
// events.Emitter so it can sit in the engine's emitter chain.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	seq    atomic.Uint64
	now    func() time.Time
}

// OpenJournal opens the journal described by cfg. An empty driver yields a
// nil journal.
func OpenJournal(cfg JournalConfig, logger *slog.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "":
		return nil, nil
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return NewJournal(db, logger)
}

// NewJournal migrates db and resumes the sequence from the last stored entry.
func NewJournal(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&JournalEntry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, logger: logger.With("component", "journal"), now: time.Now}
	var last JournalEntry
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	j.seq.Store(last.Sequence)
	return j, nil
}

// Emit stores evt. Failures are logged; the journal never blocks the engine.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if _, err := j.Append(evt); err != nil {
		j.logger.Error("journal append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append stores evt and returns the stored row.
func (j *Journal) Append(evt events.Event) (*JournalEntry, error) {
	payload := evt.Event()
	if payload == nil {
		return nil, errors.New("journal: empty event")
	}
	seq := j.seq.Add(1)
	entry := &JournalEntry{
		ID:         uuid.New(),
		Sequence:   seq,
		Type:       payload.Type,
		Account:    eventAccount(payload.Attributes),
		Attributes: encodeAttributes(payload.Attributes),
		CreatedAt:  j.now().UTC(),
	}
	entry.Digest = eventDigest(seq, entry.Type, entry.Attributes)
	err := j.db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "digest"}}, DoNothing: true}).Create(entry).Error
	if err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	return entry, nil
}

// List returns entries matching filter in sequence order.
func (j *Journal) List(filter JournalFilter) ([]JournalEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := j.db.Model(&JournalEntry{}).Where("sequence > ?", filter.After)
	if filter.Account != "" {
		query = query.Where("account = ?", filter.Account)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	var out []JournalEntry
	if err := query.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// eventAccount is the depositor for value events and the admin for
// lifecycle events.
func eventAccount(attrs map[string]string) string {
	if account := attrs["account"]; account != "" {
		return account
	}
	return attrs["admin"]
}

// encodeAttributes renders attributes as sorted key=value pairs so the digest
// is stable.
func encodeAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
	}
	return b.String()
}

// DecodeAttributes parses the stored attribute string.
func DecodeAttributes(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

func eventDigest(seq uint64, eventType, attrs string) string {
	h := blake3.New(32, nil)
	fmt.Fprintf(h, "%d|%s|%s", seq, eventType, attrs)
	return hex.EncodeToString(h.Sum(nil))
}
