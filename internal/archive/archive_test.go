package archive

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voxm2m/pkg/m2m"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	a, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSave_Upsert(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	first := []m2m.Record{
		{ID: "cin1", Content: "AUDIO_START:42:1:SERS", StateTag: "0"},
		{ID: "cin2", Content: "AUDIO_CHUNK:42:0:QUE="},
		{ID: "cin3", Content: "temperature=21"},
	}
	if err := a.Save(ctx, "voice", first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again := []m2m.Record{
		{ID: "cin1", Content: "AUDIO_START:42:1:SERS", StateTag: "1"},
		{ID: "cin4", Content: "AUDIO_END:42"},
	}
	if err := a.Save(ctx, "voice", again); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	n, err := a.Count(ctx, "voice")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}

	recs, err := a.Session(ctx, "voice", "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("session records = %d, want 3", len(recs))
	}
	if recs[0].ID != "cin1" || recs[0].Kind != "AUDIO_START" || recs[0].StateTag != "1" {
		t.Errorf("upserted record = %+v", recs[0])
	}
	if recs[0].FirstSeen.After(recs[0].LastSeen) {
		t.Error("FirstSeen after LastSeen")
	}
}

func TestSave_SourcesAreSeparate(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	recs := []m2m.Record{{ID: "cin1", Content: "x"}}
	if err := a.Save(ctx, "kitchen", recs); err != nil {
		t.Fatal(err)
	}
	if err := a.Save(ctx, "hall", recs); err != nil {
		t.Fatal(err)
	}

	for _, src := range []string{"kitchen", "hall"} {
		if n, _ := a.Count(ctx, src); n != 1 {
			t.Errorf("Count(%s) = %d, want 1", src, n)
		}
	}
}

func TestRecent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if err := a.Save(ctx, "voice", []m2m.Record{{ID: "a"}, {ID: "b"}, {ID: "c"}}); err != nil {
		t.Fatal(err)
	}

	recs, err := a.Recent(ctx, "voice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "c" || recs[1].ID != "b" {
		t.Errorf("Recent = %+v", recs)
	}

	if recs, _ := a.Recent(ctx, "unknown", 0); len(recs) != 0 {
		t.Errorf("Recent(unknown) = %+v", recs)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vox.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Save(context.Background(), "voice", []m2m.Record{{ID: "cin1", Content: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if n, _ := b.Count(context.Background(), "voice"); n != 1 {
		t.Errorf("Count after reopen = %d, want 1", n)
	}
}
