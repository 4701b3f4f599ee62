package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"model-arena/internal/eval"

	"go.etcd.io/bbolt"
)

// RunSummary is the index entry for an archived report.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	GeneratedAt    time.Time `json:"generated_at"`
	TestSize       int       `json:"test_size"`
	Usable         int       `json:"usable"`
	Failed         int       `json:"failed"`
	Leader         string    `json:"leader,omitempty"`
	LeaderAccuracy float64   `json:"leader_accuracy,omitempty"`
}

// Summarize builds the index entry for r.
func Summarize(r *eval.Report) RunSummary {
	s := RunSummary{
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		TestSize:    r.TestSize,
		Usable:      r.Usable(),
		Failed:      len(r.Failures),
	}
	if len(r.Leaderboard) > 0 {
		s.Leader = r.Leaderboard[0].Model
		s.LeaderAccuracy = r.Leaderboard[0].Metrics.Accuracy
	}
	return s
}

// runKey sorts chronologically; the run id breaks ties.
func runKey(r *eval.Report) []byte {
	return []byte(fmt.Sprintf("%020d_%s", r.GeneratedAt.UnixNano(), r.RunID))
}

// SaveReport archives a report and indexes it by generation time.
func (s *Store) SaveReport(r *eval.Report) error {
	if r == nil || r.RunID == "" {
		return fmt.Errorf("report has no run id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	summary, err := json.Marshal(Summarize(r))
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(reportsBucket)).Put([]byte(r.RunID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(runsBucket)).Put(runKey(r), summary)
	})
}

// GetReport returns the archived report for runID or ErrNotFound.
func (s *Store) GetReport(runID string) (*eval.Report, error) {
	var report *eval.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(reportsBucket)).Get([]byte(runID))
		if data == nil {
			return ErrNotFound
		}
		report = &eval.Report{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListRuns returns up to limit run summaries, newest first. A limit <= 0
// returns all runs.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	runs := []RunSummary{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var rs RunSummary
			if err := json.Unmarshal(v, &rs); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			runs = append(runs, rs)
		}
		return nil
	})
	return runs, err
}

// LatestReport returns the most recently generated report or ErrNotFound.
func (s *Store) LatestReport() (*eval.Report, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return s.GetReport(runs[0].RunID)
}
