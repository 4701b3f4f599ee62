package eval

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// undefinedAUC is reported when no ranking can be measured: either the model
// has no scores, or the test labels contain a single class.
const undefinedAUC = 0.5

// Confusion counts predicted against actual labels.
func Confusion(actual, predicted []int) ConfusionMatrix {
	var cm ConfusionMatrix
	for i := range actual {
		cm[actual[i]][predicted[i]]++
	}
	return cm
}

// ComputeMetrics derives the MetricSet from aligned labels, predictions and
// optional scores. Inputs must already be validated with ValidatePrediction.
func ComputeMetrics(actual, predicted []int, scores []float64) MetricSet {
	cm := Confusion(actual, predicted)
	n := len(actual)

	ms := MetricSet{
		Accuracy:  safeDiv(float64(cm.TP()+cm.TN()), float64(n)),
		Precision: safeDiv(float64(cm.TP()), float64(cm.TP()+cm.FP())),
		Recall:    safeDiv(float64(cm.TP()), float64(cm.TP()+cm.FN())),
		ROCAUC:    undefinedAUC,
	}
	ms.F1 = safeDiv(2*ms.Precision*ms.Recall, ms.Precision+ms.Recall)

	if scores != nil {
		ms.HasScores = true
		if _, auc, ok := ROCCurve(actual, scores); ok {
			ms.ROCAUC = auc
		}
	}
	return ms
}

// ROCCurve sweeps every distinct score as a threshold and integrates the
// resulting curve with the trapezoidal rule.
//
// Samples with equal scores cross the threshold together, so ties produce a
// single diagonal segment. The returned points are ordered by ascending
// threshold; the (0,0) point carries max(score)+1. ok is false when the
// labels hold only one class, in which case auc is 0.5.
func ROCCurve(actual []int, scores []float64) (points []ROCPoint, auc float64, ok bool) {
	if len(scores) == 0 {
		return nil, undefinedAUC, false
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(actual))
	var pos, neg int
	for i, label := range actual {
		classes[i] = label == 1
		if classes[i] {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return singleClassCurve(y, pos > 0), undefinedAUC, false
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)

	points = make([]ROCPoint, 0, len(thresh))
	for i := range thresh {
		// The +Inf cutoff is the origin, which JSON cannot carry as is.
		if math.IsInf(thresh[i], 1) {
			break
		}
		points = append(points, ROCPoint{Threshold: thresh[i], FPR: fpr[i], TPR: tpr[i]})
	}
	points = append(points, ROCPoint{Threshold: y[len(y)-1] + 1})

	// Trapezoidal needs ascending x; FPR falls as the threshold rises.
	x := make([]float64, len(points))
	f := make([]float64, len(points))
	for i, p := range points {
		x[len(points)-1-i] = p.FPR
		f[len(points)-1-i] = p.TPR
	}
	return points, integrate.Trapezoidal(x, f), true
}

// singleClassCurve is the degenerate curve when only one class is present:
// the rate of the missing class is zero throughout.
func singleClassCurve(scores []float64, positive bool) []ROCPoint {
	sort.Float64s(scores)
	var points []ROCPoint
	for i, s := range scores {
		if i > 0 && s == scores[i-1] {
			continue
		}
		points = append(points, ROCPoint{Threshold: s})
	}
	points = append(points, ROCPoint{Threshold: scores[len(scores)-1] + 1})
	for i := range points[:len(points)-1] {
		rate := float64(countAtLeast(scores, points[i].Threshold)) / float64(len(scores))
		if positive {
			points[i].TPR = rate
		} else {
			points[i].FPR = rate
		}
	}
	return points
}

func countAtLeast(sorted []float64, threshold float64) int {
	return len(sorted) - sort.SearchFloat64s(sorted, threshold)
}

// CalibrationCurve partitions scores into bins equal-width bins over [0,1]
// and reports, for each non-empty bin, the mean score and the fraction of
// positive labels. Empty bins are omitted. A score of exactly 1.0 falls in
// the last bin.
func CalibrationCurve(actual []int, scores []float64, bins int) []CalibrationPoint {
	if bins <= 0 {
		bins = DefaultCalibrationBins
	}
	sums := make([]float64, bins)
	positives := make([]int, bins)
	counts := make([]int, bins)

	for i, s := range scores {
		b := int(math.Floor(s * float64(bins)))
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		sums[b] += s
		positives[b] += actual[i]
		counts[b]++
	}

	var points []CalibrationPoint
	for b := 0; b < bins; b++ {
		if counts[b] == 0 {
			continue
		}
		points = append(points, CalibrationPoint{
			Lower:             float64(b) / float64(bins),
			Upper:             float64(b+1) / float64(bins),
			MeanPredicted:     sums[b] / float64(counts[b]),
			ObservedFrequency: float64(positives[b]) / float64(counts[b]),
			Count:             counts[b],
		})
	}
	return points
}

// ValidatePrediction checks that a prediction result is aligned with the
// test labels and well-formed. Violations are reported as prediction errors
// for the model.
func ValidatePrediction(actual []int, pr PredictionResult) error {
	if len(pr.Labels) != len(actual) {
		return fmt.Errorf("got %d predicted labels for %d test rows", len(pr.Labels), len(actual))
	}
	for i, y := range pr.Labels {
		if y != 0 && y != 1 {
			return fmt.Errorf("predicted label %d is %d, expected 0 or 1", i, y)
		}
	}
	if pr.Scores == nil {
		return nil
	}
	if len(pr.Scores) != len(actual) {
		return fmt.Errorf("got %d scores for %d test rows", len(pr.Scores), len(actual))
	}
	for i, s := range pr.Scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return fmt.Errorf("score %d is %v, expected a value in [0,1]", i, s)
		}
	}
	return nil
}

// BaselineAccuracy is the accuracy of always predicting the majority class.
func BaselineAccuracy(actual []int) float64 {
	pos := 0
	for _, y := range actual {
		pos += y
	}
	majority := pos
	if neg := len(actual) - pos; neg > majority {
		majority = neg
	}
	return safeDiv(float64(majority), float64(len(actual)))
}

// PositiveRate is the fraction of positive labels.
func PositiveRate(actual []int) float64 {
	pos := 0
	for _, y := range actual {
		pos += y
	}
	return safeDiv(float64(pos), float64(len(actual)))
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
