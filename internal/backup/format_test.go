package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/levertask/internal/store"
)

func writeTestBackup(t *testing.T, dir string) string {
	t.Helper()
	snap := &Snapshot{
		CreatedAt: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
		Sessions:  []*store.Session{testSession("sess-a", "Hooke", 2, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))},
	}
	path := filepath.Join(dir, "test.bak")
	if err := Write(path, snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return path
}

func TestWriteRead(t *testing.T) {
	path := writeTestBackup(t, t.TempDir())

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	snap, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].ID != "sess-a" {
		t.Fatalf("Sessions = %+v", snap.Sessions)
	}
	if !snap.CreatedAt.Equal(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", snap.CreatedAt)
	}
	if got := snap.Sessions[0].Trials; len(got) != 2 || got[1].TrialStartTimestamp != 20 {
		t.Errorf("Trials = %+v", got)
	}
}

func TestWrite_HeaderIsFirstLine(t *testing.T) {
	path := writeTestBackup(t, t.TempDir())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line, _, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		t.Fatal("no header line")
	}
	for _, want := range []string{`"version":1`, `"session_count":1`, `"trial_count":2`, `"checksum":"sha256:`} {
		if !strings.Contains(string(line), want) {
			t.Errorf("header %s missing %s", line, want)
		}
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	path := writeTestBackup(t, t.TempDir())

	if err := Verify(path); err != nil {
		t.Fatalf("Verify() on intact file error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-5] ^= 0xFF
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	err = Verify(path)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Verify() error = %v, want checksum mismatch", err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read() accepted a corrupted backup")
	}
}

func TestReadHeader_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"no newline", `{"version":1}`},
		{"not json", "hello\n"},
		{"future version", `{"version":99}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".bak")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadHeader(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
