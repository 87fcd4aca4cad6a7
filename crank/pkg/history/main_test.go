package history_test

import (
	"context"
	"os"
	"testing"

	cranktesting "github.com/malbeclabs/govrewards-crank/utils/pkg/testing"
)

var testDB *cranktesting.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	log := cranktesting.NewLogger()

	db, err := cranktesting.NewDB(ctx, log, nil)
	if err != nil {
		// Tests needing the database skip themselves.
		log.Warn("failed to start PostgreSQL container", "error", err)
	}
	testDB = db

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	os.Exit(code)
}

func requireDB(t *testing.T) *cranktesting.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("PostgreSQL container not available")
	}
	return testDB
}
