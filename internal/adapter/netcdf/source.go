package netcdf

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// FileSource loads the forecast file found in a data directory. Discovery
// runs on every Load so a reload picks up a newly dropped file.
type FileSource struct {
	dir     string
	pattern string
	logger  *slog.Logger
}

// NewFileSource creates a source that reads the first file in dir matching
// pattern.
func NewFileSource(dir, pattern string, logger *slog.Logger) *FileSource {
	return &FileSource{dir: dir, pattern: pattern, logger: logger}
}

// Load discovers and reads the current input file.
func (s *FileSource) Load(ctx context.Context) (domain.RawCube, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawCube{}, err
	}
	path, err := Discover(s.dir, s.pattern)
	if err != nil {
		return domain.RawCube{}, err
	}
	s.logger.Info("loading forecast file", "path", path)
	raw, err := Load(path)
	if err != nil {
		return domain.RawCube{}, err
	}
	s.logger.Debug("forecast file loaded",
		"path", path,
		"variables", len(raw.Variables),
		"members", raw.Members,
		"leads", len(raw.Lead),
	)
	return raw, nil
}

// Describe names the source for logs and events.
func (s *FileSource) Describe() string {
	return filepath.Join(s.dir, s.pattern)
}
