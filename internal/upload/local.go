package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/shirou/gopsutil/v3/disk"
)

// LocalStager stores uploads in a directory shared by API and worker.
type LocalStager struct {
	dir     string
	minFree datasize.ByteSize
	logger  *slog.Logger
}

func NewLocalStager(dir string, minFree datasize.ByteSize, logger *slog.Logger) (*LocalStager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStager{dir: dir, minFree: minFree, logger: logger}, nil
}

func (s *LocalStager) Save(_ context.Context, _ string, r io.Reader) (string, error) {
	if err := s.checkDisk(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, stagedName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// Open returns ref as is. A missing file is reported by the extraction stage.
func (s *LocalStager) Open(_ context.Context, ref string) (string, func(), error) {
	return ref, func() {}, nil
}

func (s *LocalStager) Remove(_ context.Context, ref string) error {
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStager) checkDisk() error {
	if s.minFree == 0 {
		return nil
	}
	d, err := disk.Usage(s.dir)
	if err != nil {
		s.logger.Warn("could not get disk usage", slog.String("dir", s.dir), slog.String("error", err.Error()))
		return nil
	}
	if d.Free < s.minFree.Bytes() {
		return fmt.Errorf("%w: available %s, required %s",
			ErrInsufficientSpace, datasize.ByteSize(d.Free).HR(), s.minFree.HR())
	}
	return nil
}
