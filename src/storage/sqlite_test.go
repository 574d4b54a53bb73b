package storage

import (
	"path/filepath"
	"testing"
	"time"

	"bond-inventory/src/logger"
	"bond-inventory/src/models"
)

// -----------------------------------------------------------------------------
// SQLiteStorage
// -----------------------------------------------------------------------------

func sqliteConfig(dir string) *models.MConfig {
	return &models.MConfig{
		Name:     "test",
		LogLevel: "ERROR",
		Storage: models.MStorageConfig{
			Backend: "sqlite",
			DBPath:  filepath.Join(dir, "inventory.db"),
		},
		Source: models.MSourceConfig{Granularity: "instant"},
	}
}

func TestSQLiteStorage_Roundtrip(t *testing.T) {
	st, err := NewSQLiteStorage(sqliteConfig(t.TempDir()), logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer st.Close()

	if err := st.Save(snapshotFixture()); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	one := loaded.Series["1"]
	if len(one) != 2 || one[0].Value != 100.5 || one[1].Value != 50 {
		t.Errorf("series 1: got %v", one)
	}
	want := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC)
	if !loaded.LastRefreshedAt.Equal(want) {
		t.Errorf("LastRefreshedAt: got %v, want %v (row created_at)", loaded.LastRefreshedAt, want)
	}
}

func TestSQLiteStorage_EmptyTableStartsEmpty(t *testing.T) {
	st, err := NewSQLiteStorage(sqliteConfig(t.TempDir()), logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer st.Close()

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Empty() {
		t.Errorf("got %v, want empty cache", loaded)
	}
}

func TestSQLiteStorage_SavesAppend(t *testing.T) {
	st, err := NewSQLiteStorage(sqliteConfig(t.TempDir()), logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer st.Close()

	first := snapshotFixture()
	if err := st.Save(first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second := first.Clone()
	second.Series["1"] = append(second.Series["1"], models.MSeriesPoint{
		Timestamp: time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC), Value: 75,
	})
	second.LastRefreshedAt = time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	if err := st.Save(second); err != nil {
		t.Fatalf("second save: %v", err)
	}

	n, err := st.SnapshotCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("rows: got %d, want 2 (append-only)", n)
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Series["1"]) != 3 {
		t.Errorf("load did not return the latest row: %v", loaded.Series["1"])
	}
}
