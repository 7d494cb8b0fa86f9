package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	// Registers the "sqlite3" SQLCipher driver.
	_ "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

// ErrUnknownJournalKind is returned when a stored row carries a kind this
// build does not know how to decode.
var ErrUnknownJournalKind = errors.New("unknown journal event kind")

// Deterministic CBOR: the same event always encodes to the same bytes.
var (
	journalEnc cbor.EncMode
	journalDec cbor.DecMode
)

func init() {
	var err error
	journalEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	journalDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// Journal implements domain.EventJournal on a SQLite database opened
// through the SQLCipher driver. With a key the file is encrypted.
type Journal struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// OpenJournal opens (or creates) the journal at path. key may be nil.
func OpenJournal(path string, key []byte, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := path
	if len(key) > 0 {
		dsn = fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	j := &Journal{db: db, path: path, logger: logger, now: time.Now}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal tables: %w", err)
	}
	return j, nil
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append records event at the end of the journal.
func (j *Journal) Append(ctx context.Context, event domain.Event) error {
	payload, err := journalEnc.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Kind(), err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, payload, recorded_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), string(event.Kind()), payload, j.now().UnixNano())
	return err
}

// Entries returns every recorded event in insertion order.
func (j *Journal) Entries(ctx context.Context) ([]domain.JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, id, kind, payload, recorded_at FROM events ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			seq        int64
			id, kind   string
			payload    []byte
			recordedAt int64
		)
		if err := rows.Scan(&seq, &id, &kind, &payload, &recordedAt); err != nil {
			return nil, err
		}
		event, err := decodeEvent(domain.EventKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("journal entry %d: %w", seq, err)
		}
		entries = append(entries, domain.JournalEntry{
			ID:         id,
			Seq:        seq,
			Event:      event,
			RecordedAt: time.Unix(0, recordedAt),
		})
	}
	return entries, rows.Err()
}

// Truncate keeps only the newest keep entries.
func (j *Journal) Truncate(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := j.db.ExecContext(ctx,
		`DELETE FROM events WHERE seq NOT IN (SELECT seq FROM events ORDER BY seq DESC LIMIT ?)`, keep)
	return err
}

// Attach subscribes the journal to every bus event. Write failures are
// logged and never block dispatch.
func (j *Journal) Attach(ctx context.Context, bus *eventbus.Bus) error {
	return bus.Subscribe(domain.KindAny, func(event domain.Event) error {
		if err := j.Append(ctx, event); err != nil {
			j.logger.Warn("journal append failed", zap.String("kind", string(event.Kind())), zap.Error(err))
		}
		return nil
	})
}

// Path returns the database file location.
func (j *Journal) Path() string {
	return j.path
}

// Close releases the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func decodeEvent(kind domain.EventKind, payload []byte) (domain.Event, error) {
	switch kind {
	case domain.KindProcessStarted:
		return decodeAs[domain.ProcessStarted](payload)
	case domain.KindProcessStopped:
		return decodeAs[domain.ProcessStopped](payload)
	case domain.KindMediaActivityChanged:
		return decodeAs[domain.MediaActivityChanged](payload)
	case domain.KindPolicyDecision:
		return decodeAs[domain.PolicyDecision](payload)
	case domain.KindSwitchIntent:
		return decodeAs[domain.SwitchIntent](payload)
	case domain.KindConfigApplied:
		return decodeAs[domain.ConfigApplied](payload)
	case domain.KindConfigInvalidated:
		return decodeAs[domain.ConfigInvalidated](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJournalKind, kind)
	}
}

func decodeAs[T domain.Event](payload []byte) (domain.Event, error) {
	var e T
	if err := journalDec.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// JournalEvents extracts the events from entries, in order.
func JournalEvents(entries []domain.JournalEntry) []domain.Event {
	events := make([]domain.Event, len(entries))
	for i, e := range entries {
		events[i] = e.Event
	}
	return events
}

var _ domain.EventJournal = (*Journal)(nil)
