package db

import (
	"testing"
	"testing/fstest"

	"github.com/digital-shop/bot/migrations"
)

func TestPendingFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.up.sql":   {Data: []byte("SELECT 2")},
		"001_init.up.sql":   {Data: []byte("SELECT 1")},
		"001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("docs")},
		"sub/003.up.sql":    {Data: []byte("SELECT 3")},
	}

	files, err := PendingFiles(fsys)
	if err != nil {
		t.Fatalf("PendingFiles failed: %v", err)
	}
	want := []string{"001_init.up.sql", "002_more.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("PendingFiles = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := PendingFiles(migrations.FS)
	if err != nil {
		t.Fatalf("PendingFiles failed: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.up.sql" {
		t.Fatalf("embedded migrations = %v", files)
	}
}
