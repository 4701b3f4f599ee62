package eval

import (
	"sort"
	"time"
)

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank     int           `json:"rank"`
	Model    string        `json:"model"`
	Kind     string        `json:"kind,omitempty"`
	Metrics  MetricSet     `json:"metrics"`
	Duration time.Duration `json:"duration"`
}

// Report is the aggregated result of one run.
type Report struct {
	RunID            string               `json:"run_id"`
	GeneratedAt      time.Time            `json:"generated_at"`
	TestSize         int                  `json:"test_size"`
	PositiveRate     float64              `json:"positive_rate"`
	BaselineAccuracy float64              `json:"baseline_accuracy"`
	Leaderboard      []LeaderboardEntry   `json:"leaderboard"`
	Failures         []Failure            `json:"failures"`
	Curves           map[string]CurveData `json:"curves"`
	// Best maps a metric name to the leading model for that metric.
	Best map[string]string `json:"best,omitempty"`
	// NoUsableModels is set when every model failed or none were found.
	NoUsableModels bool `json:"no_usable_models"`
}

// Usable returns the number of successfully evaluated models.
func (r *Report) Usable() int {
	return len(r.Leaderboard)
}

// Aggregate merges per-model outcomes into a report. Failures keep their
// input order; the leaderboard is sorted by accuracy descending with ties
// broken by model name. A report is produced even when every model failed.
func Aggregate(results []Result) *Report {
	r := &Report{
		Leaderboard: []LeaderboardEntry{},
		Failures:    []Failure{},
		Curves:      make(map[string]CurveData),
	}

	for _, res := range results {
		switch o := res.Outcome.(type) {
		case *Success:
			r.Leaderboard = append(r.Leaderboard, LeaderboardEntry{
				Model:    o.Model,
				Kind:     res.Descriptor.Kind,
				Metrics:  o.Metrics,
				Duration: o.Duration,
			})
			r.Curves[o.Model] = o.Curves
		case *Failure:
			r.Failures = append(r.Failures, *o)
		case nil:
			r.Failures = append(r.Failures, Failure{
				Model:       res.Descriptor.Name,
				Kind:        FailurePrediction,
				Description: "no outcome recorded",
			})
		}
	}

	sort.SliceStable(r.Leaderboard, func(i, j int) bool {
		a, b := r.Leaderboard[i], r.Leaderboard[j]
		if a.Metrics.Accuracy != b.Metrics.Accuracy {
			return a.Metrics.Accuracy > b.Metrics.Accuracy
		}
		return a.Model < b.Model
	})
	for i := range r.Leaderboard {
		r.Leaderboard[i].Rank = i + 1
	}

	r.NoUsableModels = len(r.Leaderboard) == 0
	r.Best = bestByMetric(r.Leaderboard)
	return r
}

// BestMetrics lists the metrics highlighted in Report.Best, in display order.
var BestMetrics = []string{"accuracy", "precision", "recall", "f1", "roc_auc"}

func metricValue(m MetricSet, name string) float64 {
	switch name {
	case "accuracy":
		return m.Accuracy
	case "precision":
		return m.Precision
	case "recall":
		return m.Recall
	case "f1":
		return m.F1
	default:
		return m.ROCAUC
	}
}

// bestByMetric picks the leader per metric, first in leaderboard order on ties.
func bestByMetric(board []LeaderboardEntry) map[string]string {
	if len(board) == 0 {
		return nil
	}
	best := make(map[string]string, len(BestMetrics))
	for _, name := range BestMetrics {
		leader := board[0]
		for _, e := range board[1:] {
			if metricValue(e.Metrics, name) > metricValue(leader.Metrics, name) {
				leader = e
			}
		}
		best[name] = leader.Model
	}
	return best
}
