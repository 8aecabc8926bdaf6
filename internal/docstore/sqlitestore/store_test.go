package sqlitestore

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var testStore *SQLiteStore

func SetupTestDB(t *testing.T) {
	var err error
	testStore, err = New(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
}

func TeardownTestDB() {
	testStore.Close()
}
