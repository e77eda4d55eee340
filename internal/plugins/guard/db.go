package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/emsm/emsm/internal/util"
)

// Record describes a world that failed a test. A world without a record
// is healthy; the record is dropped once the world passes all tests.
type Record struct {
	FailedTest     string    `json:"failed_test"`
	TestMessage    string    `json:"test_message"`
	TestTime       time.Time `json:"test_time"`
	ErrorAction    string    `json:"error_action"`
	WarningPrinted bool      `json:"warning_printed"`
}

// DB maps world names to their failure records.
type DB map[string]*Record

func loadDB(path string) (DB, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DB{}, nil
	}
	if err != nil {
		return nil, err
	}
	db := DB{}
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("reading guard database %s: %w", path, err)
	}
	return db, nil
}

func (db DB) save(path string) error {
	return util.AtomicWriteJSON(path, db)
}
