package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FSStore — content-addressed файловое хранилище бандлов:
// <dir>/<hh>/<contenthash>.json, где hh — первые два hex-символа.
// Существующий файл означает, что бандл уже записан — exactly-once
// обеспечивается атомарным O_EXCL.
type FSStore struct {
	dir    string
	logger *zap.Logger
}

func NewFSStore(dir string, logger *zap.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir %s: %w", dir, err)
	}
	return &FSStore{dir: dir, logger: logger.With(zap.String("mod", "evidence-fs"))}, nil
}

func (s *FSStore) WriteBatch(ctx context.Context, bundles []Bundle) error {
	var firstErr error
	for _, b := range bundles {
		if err := s.write(b); err != nil {
			s.logger.Error("evidence write failed",
				zap.String("evidence_id", b.EvidenceID),
				zap.String("content_hash", b.ContentHash),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *FSStore) write(b Bundle) error {
	path, err := s.path(b.ContentHash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Уже записан — бандл неизменяем, повторная запись не нужна
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read достает бандл по контент-хешу ("sha256:..." или голый hex).
func (s *FSStore) Read(contentHash string) (*Bundle, error) {
	path, err := s.path(contentHash)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}

func (s *FSStore) path(contentHash string) (string, error) {
	hexPart := strings.TrimPrefix(contentHash, "sha256:")
	if len(hexPart) < 2 {
		return "", fmt.Errorf("malformed content hash %q", contentHash)
	}
	return filepath.Join(s.dir, hexPart[:2], hexPart+".json"), nil
}
