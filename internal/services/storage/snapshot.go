package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"animalcensus/internal/logger"
	"animalcensus/internal/services/counting"
)

const timestampLayout = "2006-01-02_15-04-05"

// Report is the on-disk form of a saved session snapshot.
type Report struct {
	SessionID   string         `json:"session_id"`
	SavedAt     time.Time      `json:"saved_at"`
	Frames      uint64         `json:"frames_processed"`
	AverageFPS  float64        `json:"average_fps"`
	Classes     []string       `json:"classes"`
	Totals      map[string]int `json:"totals"`
	Total       int            `json:"total"`
	MaxPerFrame map[string]int `json:"max_per_frame"`
	LastFrame   map[string]int `json:"last_frame"`
}

// SnapshotService writes session snapshots as JSON files.
type SnapshotService struct {
	dir       string
	sessionID string
	classes   []string
	logger    *logger.Logger
	now       func() time.Time
	mu        sync.Mutex
}

func NewSnapshotService(dir, sessionID string, classes []string, log *logger.Logger) *SnapshotService {
	if log == nil {
		log = logger.NewNop()
	}
	return &SnapshotService{
		dir:       dir,
		sessionID: sessionID,
		classes:   append([]string(nil), classes...),
		logger:    log,
		now:       time.Now,
	}
}

// Save writes {timestamp}_{session}_totals.json and returns its path. A second
// save within the same second gets a numeric suffix instead of overwriting.
func (s *SnapshotService) Save(snap counting.Snapshot, averageFPS float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	savedAt := s.now()
	report := Report{
		SessionID:   s.sessionID,
		SavedAt:     savedAt,
		Frames:      snap.Frames,
		AverageFPS:  averageFPS,
		Classes:     s.classes,
		Totals:      orEmpty(snap.Totals),
		Total:       snap.Totals.Sum(),
		MaxPerFrame: orEmpty(snap.MaxPerFrame),
		LastFrame:   orEmpty(snap.LastFrame),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	base := fmt.Sprintf("%s_%s_totals", savedAt.Format(timestampLayout), s.sessionID)
	for i := 1; ; i++ {
		name := base + ".json"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.json", base, i)
		}
		fullpath := filepath.Join(s.dir, name)

		f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create snapshot %s: %w", name, err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			os.Remove(fullpath)
			return "", fmt.Errorf("failed to write snapshot %s: %w", name, errors.Join(werr, cerr))
		}

		s.logger.Info("Snapshot saved to %s (%d frames, %d animals)", fullpath, report.Frames, report.Total)
		return fullpath, nil
	}
}

func orEmpty[M ~map[string]int](m M) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
