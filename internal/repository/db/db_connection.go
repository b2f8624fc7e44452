package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout bounds how long a write waits on a lock held by a concurrent reader.
const DefaultBusyTimeout = time.Second

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	db, err := Open(path, busyTimeout)
	if err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

// Open opens an existing database without touching the schema. Read-only
// tools (kilnweb, kilnctl) use it so they never race the daemon on DDL.
func Open(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout: %w", err)
	}
	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaProgramInfo = `
CREATE TABLE IF NOT EXISTS ProgramInfo (
    ProgramID INTEGER PRIMARY KEY AUTOINCREMENT,
    Name TEXT NOT NULL,
    Deleted INTEGER NOT NULL DEFAULT 0,
    LastExecTime INTEGER,
    ExecCount INTEGER NOT NULL DEFAULT 0
);
`

const schemaPrograms = `
CREATE TABLE IF NOT EXISTS Programs (
    ProgramID INTEGER NOT NULL,
    Step INTEGER NOT NULL,
    Instruction TEXT NOT NULL,
    Temperature INTEGER NOT NULL,
    Param INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (ProgramID, Step)
);
`

const schemaFiringInfo = `
CREATE TABLE IF NOT EXISTS FiringInfo (
    FiringID INTEGER PRIMARY KEY AUTOINCREMENT,
    ProgramID INTEGER,
    StartTimeT INTEGER NOT NULL,
    EndTimeT INTEGER
);
`

const schemaFirings = `
CREATE TABLE IF NOT EXISTS Firings (
    FiringID INTEGER NOT NULL,
    StepID INTEGER NOT NULL,
    SegmentType TEXT NOT NULL,
    PV INTEGER NOT NULL,
    Elapsed INTEGER NOT NULL,
    StartTimeT INTEGER NOT NULL,
    EndTimeT INTEGER NOT NULL,
    PRIMARY KEY (FiringID, StepID)
);
`

const schemaLog = `
CREATE TABLE IF NOT EXISTS Log (
    IsoTime TEXT NOT NULL,
    TimeT INTEGER NOT NULL,
    FiringID INTEGER NOT NULL,
    StepID INTEGER NOT NULL,
    PV INTEGER NOT NULL,
    TotalElapsed INTEGER NOT NULL,
    SegmentElapsed INTEGER NOT NULL
);
`

const schemaLogIndex = `CREATE INDEX IF NOT EXISTS idx_log_timet ON Log (TimeT);`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS Settings (
    Name TEXT PRIMARY KEY,
    Value TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaProgramInfo,
		schemaPrograms,
		schemaFiringInfo,
		schemaFirings,
		schemaLog,
		schemaLogIndex,
		schemaSettings,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
