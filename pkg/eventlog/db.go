package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/vcsflow/stacker/modules/plumbing"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_txid ON events(transaction_id);
`

// payload is the versioned, kind-specific on-disk encoding of an Event
// (spec.md §6: "payload encoding is versioned and includes kind-specific
// fields").
type payload struct {
	Version   int    `json:"v"`
	RefName   string `json:"ref_name,omitempty"`
	OldOid    string `json:"old_oid,omitempty"`
	NewOid    string `json:"new_oid,omitempty"`
	Message   string `json:"message,omitempty"`
	CommitOid string `json:"commit_oid,omitempty"`
	RWOld     string `json:"rewrite_old,omitempty"`
	RWNew     string `json:"rewrite_new,omitempty"`
}

// Log is the durable, ordered event table (db.sqlite3).
type Log struct {
	db *sql.DB
}

// Open opens (creating if absent) the event log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error { return l.db.Close() }

// MakeTransactionID returns a unique id for one logical user operation; all
// events it produces share this id and replay atomically (spec.md §4.2).
func MakeTransactionID(now time.Time, label string) string {
	if label == "" {
		return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405.000000000Z"), uuid.NewString())
	}
	return fmt.Sprintf("%s-%s-%s", now.UTC().Format("20060102T150405.000000000Z"), label, uuid.NewString())
}

func encodePayload(e Event) (string, error) {
	p := payload{Version: 1}
	switch e.Kind {
	case KindRefUpdate:
		p.RefName = e.RefName.String()
		p.OldOid = e.OldOid.String()
		p.NewOid = e.NewOid.String()
		p.Message = e.Message
	case KindCommit, KindHide, KindUnhide:
		p.CommitOid = e.CommitOid.String()
	case KindRewrite:
		p.RWOld = e.RewriteOld.String()
		p.RWNew = e.RewriteNew.String()
	}
	b, err := json.Marshal(p)
	return string(b), err
}

func decodePayload(kind Kind, ts time.Time, raw string) (Event, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Event{}, err
	}
	e := Event{Timestamp: ts, Kind: kind}
	switch kind {
	case KindRefUpdate:
		e.RefName = plumbing.ReferenceName(p.RefName)
		e.OldOid = plumbing.NewHash(p.OldOid)
		e.NewOid = plumbing.NewHash(p.NewOid)
		e.Message = p.Message
	case KindCommit, KindHide, KindUnhide:
		e.CommitOid = plumbing.NewHash(p.CommitOid)
	case KindRewrite:
		e.RewriteOld = plumbing.NewHash(p.RWOld)
		e.RewriteNew = plumbing.NewHash(p.RWNew)
	}
	return e, nil
}

// Append writes events atomically: either all rows commit under one sqlite
// transaction or none do (spec.md I1: the log is append-only).
func (l *Log) Append(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx := context.Background()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (transaction_id, timestamp, kind, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, e := range events {
		raw, err := encodePayload(e)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.TransactionID, e.Timestamp.UnixNano(), int(e.Kind), raw); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// readAll returns every event up to cursor (inclusive), ordered by
// (timestamp, row_id) per I1's determinism requirement. cursor == nil means
// no limit.
func (l *Log) readAll(cursor *int64) ([]Event, error) {
	query := `SELECT row_id, transaction_id, timestamp, kind, payload FROM events`
	args := []any{}
	if cursor != nil {
		query += ` WHERE row_id <= ?`
		args = append(args, *cursor)
	}
	query += ` ORDER BY timestamp ASC, row_id ASC`
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var rowID int64
		var txID string
		var tsNano int64
		var kind int
		var raw string
		if err := rows.Scan(&rowID, &txID, &tsNano, &kind, &raw); err != nil {
			return nil, err
		}
		e, err := decodePayload(Kind(kind), time.Unix(0, tsNano), raw)
		if err != nil {
			return nil, err
		}
		e.RowID = rowID
		e.TransactionID = txID
		events = append(events, e)
		_ = e
	}
	return events, rows.Err()
}
