package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path with size bytes of deterministic content, creating
// parent directories as needed. A size <= 0 still produces a one-byte file so
// callers always get something probe-able. The fill byte is derived from the
// file name, so two fixtures only share content when they share a name.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	fill := byte('x')
	if base := filepath.Base(path); base != "" && base != "." {
		fill = base[0]
	}
	chunk := bytes.Repeat([]byte{fill}, 16*1024)
	for written := int64(0); written < size; {
		n := int64(len(chunk))
		if rest := size - written; rest < n {
			n = rest
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += n
	}
}
