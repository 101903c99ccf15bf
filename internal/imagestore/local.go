// Package imagestore keeps generated result images on local disk.
package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// SaveResult writes the final image as result_<id>.png and returns its path.
func (l *Local) SaveResult(tryonID string, image []byte) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create photos dir: %w", err)
	}
	path := filepath.Join(l.dir, fmt.Sprintf("result_%s.png", tryonID))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("write result image: %w", err)
	}
	return path, nil
}

// SaveUpload streams an incoming subject or garment photo to disk and
// returns its path. kind distinguishes the two inputs of one try-on.
func (l *Local) SaveUpload(tryonID, kind string, r io.Reader) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create photos dir: %w", err)
	}
	path := filepath.Join(l.dir, fmt.Sprintf("%s_%s.jpg", kind, tryonID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}
