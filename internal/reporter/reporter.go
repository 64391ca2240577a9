package reporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kurihiro0119/sponsor-access-sync/internal/aggregator"
	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
)

const (
	NumbersFile  = "numbers.json"
	SponsorsFile = "sponsors.json"
)

// Reporter writes the published sponsorship reports to a directory
type Reporter struct {
	dir    string
	logger *slog.Logger
}

// New creates a reporter writing into dir
func New(dir string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{dir: dir, logger: logger}
}

// Write stores the aggregate numbers of all sponsors and the roster of the
// public ones
func (r *Reporter) Write(sponsors []*domain.Sponsor) (domain.Numbers, error) {
	numbers := aggregator.Summarize(sponsors)
	roster := aggregator.PublicRoster(sponsors)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return numbers, fmt.Errorf("failed to create output directory: %w", err)
	}

	numbersJSON, err := json.Marshal(numbers)
	if err != nil {
		return numbers, err
	}
	if err := writeFile(filepath.Join(r.dir, NumbersFile), numbersJSON); err != nil {
		return numbers, err
	}

	rosterJSON, err := json.MarshalIndent(roster, "", "  ")
	if err != nil {
		return numbers, err
	}
	if err := writeFile(filepath.Join(r.dir, SponsorsFile), rosterJSON); err != nil {
		return numbers, err
	}

	r.logger.Info("wrote reports", "dir", r.dir, "total", numbers.Total, "count", numbers.Count, "public", len(roster))
	return numbers, nil
}

// writeFile replaces path through a temp file so readers never see a partial report
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
