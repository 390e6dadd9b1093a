package storage

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb/v2"
)

//go:embed schema/raceArchive.sql
var raceArchiveSchema []byte

type DuckDB = *sqlx.DB

// InitDuckDB opens the archive at path and applies the schema. An empty
// path opens an in-memory database.
func InitDuckDB(path string) (DuckDB, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %s", err)
		}
	}

	db, err := sqlx.Connect("duckdb", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(string(raceArchiveSchema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %s", err)
	}

	return db, nil
}
