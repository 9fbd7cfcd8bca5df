package file

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dumps.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestReadList_Basic(t *testing.T) {
	t.Parallel()

	content := `
# nightly exports
dumps/2023-01.sql
   # indented comment
s3://journals/2023-02.sql.gz

   https://mirror.example.org/2023-03.sql
`
	path := writeTempFile(t, content)

	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList error: %v", err)
	}

	want := []string{
		"dumps/2023-01.sql",
		"s3://journals/2023-02.sql.gz",
		"https://mirror.example.org/2023-03.sql",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadList(%q) = %#v, want %#v", path, got, want)
	}
}

func TestReadList_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "")
	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}
}

func TestReadList_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := ReadList("does-not-exist-12345.txt")
	if err == nil {
		t.Fatalf("expected error for missing file, got nil")
	}
}
