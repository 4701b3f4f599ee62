package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func success(name string, ms MetricSet) Result {
	return Result{Descriptor: ModelDescriptor{Name: name, Kind: "envelope"}, Outcome: &Success{Model: name, Metrics: ms}}
}

func failure(name string, kind FailureKind) Result {
	return Result{
		Descriptor: ModelDescriptor{Name: name},
		Outcome:    &Failure{Model: name, Kind: kind, Description: "failed"},
	}
}

func TestAggregate_OrdersByAccuracyThenName(t *testing.T) {
	report := Aggregate([]Result{
		success("zeta", MetricSet{Accuracy: 0.7, ROCAUC: 0.9}),
		failure("broken", FailureLoad),
		success("alpha", MetricSet{Accuracy: 0.7, Recall: 0.8}),
		success("beta", MetricSet{Accuracy: 0.8, Precision: 0.6}),
		failure("slow", FailureTimeout),
	})

	var order []string
	for i, e := range report.Leaderboard {
		order = append(order, e.Model)
		assert.Equal(t, i+1, e.Rank)
		assert.Equal(t, "envelope", e.Kind)
	}
	assert.Equal(t, []string{"beta", "alpha", "zeta"}, order)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "broken", report.Failures[0].Model, "failures keep input order")
	assert.Equal(t, "slow", report.Failures[1].Model)

	assert.Len(t, report.Curves, 3)
	assert.False(t, report.NoUsableModels)
	assert.Equal(t, 3, report.Usable())
}

func TestAggregate_BestByMetric(t *testing.T) {
	report := Aggregate([]Result{
		success("a", MetricSet{Accuracy: 0.9, Precision: 0.5, Recall: 0.5, F1: 0.5, ROCAUC: 0.5}),
		success("b", MetricSet{Accuracy: 0.8, Precision: 0.9, Recall: 0.5, F1: 0.7, ROCAUC: 0.95}),
		success("c", MetricSet{Accuracy: 0.8, Precision: 0.9, Recall: 0.6, F1: 0.6, ROCAUC: 0.5}),
	})

	assert.Equal(t, map[string]string{
		"accuracy":  "a",
		"precision": "b", // tie with c, b ranks first
		"recall":    "c",
		"f1":        "b",
		"roc_auc":   "b",
	}, report.Best)
}

func TestAggregate_Empty(t *testing.T) {
	report := Aggregate(nil)
	assert.True(t, report.NoUsableModels)
	assert.NotNil(t, report.Leaderboard)
	assert.NotNil(t, report.Failures)
	assert.Nil(t, report.Best)
}

func TestAggregate_MissingOutcome(t *testing.T) {
	report := Aggregate([]Result{{Descriptor: ModelDescriptor{Name: "ghost"}}})
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "ghost", report.Failures[0].Model)
	assert.True(t, report.NoUsableModels)
}
