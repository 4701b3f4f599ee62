package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetrics_Basic(t *testing.T) {
	actual := []int{1, 1, 0, 0}
	predicted := []int{1, 0, 0, 0}

	cm := Confusion(actual, predicted)
	assert.Equal(t, ConfusionMatrix{{2, 0}, {1, 1}}, cm)
	assert.Equal(t, 1, cm.TP())
	assert.Equal(t, 2, cm.TN())
	assert.Equal(t, 0, cm.FP())
	assert.Equal(t, 1, cm.FN())

	ms := ComputeMetrics(actual, predicted, nil)
	assert.InDelta(t, 0.75, ms.Accuracy, 1e-9)
	assert.InDelta(t, 1.0, ms.Precision, 1e-9)
	assert.InDelta(t, 0.5, ms.Recall, 1e-9)
	assert.InDelta(t, 2.0/3.0, ms.F1, 1e-9)
	assert.False(t, ms.HasScores)
	assert.Equal(t, 0.5, ms.ROCAUC, "no scores means an uninformative AUC")
}

func TestComputeMetrics_NoPositivePredictions(t *testing.T) {
	ms := ComputeMetrics([]int{1, 0, 1, 0}, []int{0, 0, 0, 0}, nil)
	assert.Equal(t, 0.0, ms.Precision)
	assert.Equal(t, 0.0, ms.Recall)
	assert.Equal(t, 0.0, ms.F1)
	assert.InDelta(t, 0.5, ms.Accuracy, 1e-9)
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	actual := []int{1, 0, 1, 1, 0}
	predicted := []int{1, 1, 0, 1, 0}
	scores := []float64{0.9, 0.6, 0.4, 0.7, 0.1}

	assert.Equal(t, ComputeMetrics(actual, predicted, scores), ComputeMetrics(actual, predicted, scores))
}

func TestROCCurve(t *testing.T) {
	actual := []int{1, 1, 0, 0}

	tests := []struct {
		name   string
		scores []float64
		auc    float64
	}{
		{"perfect", []float64{0.9, 0.8, 0.2, 0.1}, 1.0},
		{"inverted", []float64{0.1, 0.2, 0.8, 0.9}, 0.0},
		{"uninformative", []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"one swap", []float64{0.9, 0.3, 0.4, 0.1}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, auc, ok := ROCCurve(actual, tt.scores)
			require.True(t, ok)
			assert.InDelta(t, tt.auc, auc, 1e-9)

			require.NotEmpty(t, points)
			last := points[len(points)-1]
			assert.Equal(t, ROCPoint{Threshold: maxOf(tt.scores) + 1}, last, "origin carries the highest threshold")
			assert.Equal(t, 1.0, points[0].FPR)
			assert.Equal(t, 1.0, points[0].TPR)
			for i := 1; i < len(points); i++ {
				assert.Less(t, points[i-1].Threshold, points[i].Threshold, "ascending thresholds")
			}
		})
	}
}

func TestROCCurve_TiesFormOneSegment(t *testing.T) {
	points, _, ok := ROCCurve([]int{1, 0, 1}, []float64{0.7, 0.7, 0.2})
	require.True(t, ok)
	assert.Len(t, points, 3, "origin plus one point per distinct score")
}

func TestROCCurve_PointsCountScoresAtOrAboveThreshold(t *testing.T) {
	points, _, ok := ROCCurve([]int{1, 1, 0, 0}, []float64{0.9, 0.3, 0.4, 0.1})
	require.True(t, ok)
	require.Len(t, points, 5)

	want := []ROCPoint{
		{Threshold: 0.1, FPR: 1, TPR: 1},
		{Threshold: 0.3, FPR: 0.5, TPR: 1},
		{Threshold: 0.4, FPR: 0.5, TPR: 0.5},
		{Threshold: 0.9, FPR: 0, TPR: 0.5},
		{Threshold: 1.9, FPR: 0, TPR: 0},
	}
	for i, w := range want {
		assert.InDelta(t, w.Threshold, points[i].Threshold, 1e-9, "threshold %d", i)
		assert.InDelta(t, w.FPR, points[i].FPR, 1e-9, "fpr %d", i)
		assert.InDelta(t, w.TPR, points[i].TPR, 1e-9, "tpr %d", i)
	}
}

func TestROCCurve_DoesNotReorderInputs(t *testing.T) {
	actual := []int{0, 1, 0, 1}
	scores := []float64{0.8, 0.1, 0.3, 0.6}
	_, _, ok := ROCCurve(actual, scores)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 0, 1}, actual)
	assert.Equal(t, []float64{0.8, 0.1, 0.3, 0.6}, scores)
}

func TestROCCurve_SingleClass(t *testing.T) {
	points, auc, ok := ROCCurve([]int{1, 1, 1}, []float64{0.9, 0.2, 0.5})
	assert.False(t, ok)
	assert.Equal(t, 0.5, auc)
	require.Len(t, points, 4)
	assert.Equal(t, ROCPoint{Threshold: 0.2, TPR: 1}, points[0])
	top := 0.9
	assert.Equal(t, ROCPoint{Threshold: top + 1}, points[3])

	ms := ComputeMetrics([]int{1, 1, 1}, []int{1, 1, 0}, []float64{0.2, 0.5, 0.9})
	assert.True(t, ms.HasScores)
	assert.Equal(t, 0.5, ms.ROCAUC)
}

func TestCalibrationCurve(t *testing.T) {
	actual := []int{0, 1, 0, 1}
	scores := []float64{0.05, 0.15, 0.12, 1.0}

	points := CalibrationCurve(actual, scores, 10)
	require.Len(t, points, 3, "empty bins are omitted")

	assert.InDelta(t, 0.0, points[0].Lower, 1e-9)
	assert.Equal(t, 1, points[0].Count)
	assert.InDelta(t, 0.05, points[0].MeanPredicted, 1e-9)
	assert.Equal(t, 0.0, points[0].ObservedFrequency)

	assert.InDelta(t, 0.1, points[1].Lower, 1e-9)
	assert.Equal(t, 2, points[1].Count)
	assert.InDelta(t, 0.135, points[1].MeanPredicted, 1e-9)
	assert.InDelta(t, 0.5, points[1].ObservedFrequency, 1e-9)

	assert.InDelta(t, 0.9, points[2].Lower, 1e-9)
	assert.InDelta(t, 1.0, points[2].Upper, 1e-9)
	assert.Equal(t, 1.0, points[2].ObservedFrequency, "a score of 1.0 lands in the last bin")

	total := 0
	for _, p := range points {
		total += p.Count
	}
	assert.Equal(t, len(scores), total)
}

func TestCalibrationCurve_DefaultBins(t *testing.T) {
	points := CalibrationCurve([]int{1}, []float64{0.55}, 0)
	require.Len(t, points, 1)
	assert.InDelta(t, 0.5, points[0].Lower, 1e-9)
	assert.InDelta(t, 0.6, points[0].Upper, 1e-9)
}

func TestValidatePrediction(t *testing.T) {
	actual := []int{1, 0, 1}

	tests := []struct {
		name    string
		pr      PredictionResult
		wantErr bool
	}{
		{"valid labels", PredictionResult{Labels: []int{1, 0, 0}}, false},
		{"valid scores", PredictionResult{Labels: []int{1, 0, 0}, Scores: []float64{0.8, 0, 1}}, false},
		{"short labels", PredictionResult{Labels: []int{1, 0}}, true},
		{"non-binary label", PredictionResult{Labels: []int{1, 2, 0}}, true},
		{"short scores", PredictionResult{Labels: []int{1, 0, 0}, Scores: []float64{0.5}}, true},
		{"score above one", PredictionResult{Labels: []int{1, 0, 0}, Scores: []float64{0.5, 1.2, 0.1}}, true},
		{"negative score", PredictionResult{Labels: []int{1, 0, 0}, Scores: []float64{0.5, -0.1, 0.1}}, true},
		{"NaN score", PredictionResult{Labels: []int{1, 0, 0}, Scores: []float64{0.5, math.NaN(), 0.1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePrediction(actual, tt.pr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaselineAndPositiveRate(t *testing.T) {
	assert.InDelta(t, 0.75, BaselineAccuracy([]int{0, 0, 0, 1}), 1e-9)
	assert.InDelta(t, 0.25, PositiveRate([]int{0, 0, 0, 1}), 1e-9)
	assert.Equal(t, 0.0, BaselineAccuracy(nil))
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func TestComputeMetrics_PerfectAndComplement(t *testing.T) {
	actual := []int{1, 0, 1, 1, 0}

	perfect := ComputeMetrics(actual, actual, nil)
	assert.Equal(t, 1.0, perfect.Accuracy)
	assert.Equal(t, 1.0, perfect.Precision)
	assert.Equal(t, 1.0, perfect.Recall)
	assert.Equal(t, 1.0, perfect.F1)

	complement := make([]int, len(actual))
	for i, y := range actual {
		complement[i] = 1 - y
	}
	assert.Equal(t, 0.0, ComputeMetrics(actual, complement, nil).Accuracy)
}

func TestCalibrationCurve_DistinctBins(t *testing.T) {
	points := CalibrationCurve([]int{0, 0, 1, 1}, []float64{0.05, 0.15, 0.85, 0.95}, 10)
	require.Len(t, points, 4)

	want := []struct{ lower, mean, freq float64 }{
		{0.0, 0.05, 0},
		{0.1, 0.15, 0},
		{0.8, 0.85, 1},
		{0.9, 0.95, 1},
	}
	for i, w := range want {
		assert.InDelta(t, w.lower, points[i].Lower, 1e-9)
		assert.InDelta(t, w.mean, points[i].MeanPredicted, 1e-9)
		assert.Equal(t, w.freq, points[i].ObservedFrequency)
		assert.Equal(t, 1, points[i].Count)
	}
}
