package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Envelope kinds understood by LoadEnvelope.
const (
	KindLogistic  = "logistic"
	KindTree      = "tree"
	KindKNN       = "knn"
	KindLinearSVM = "linear_svm"
	KindMajority  = "majority"
)

// Envelope is the on-disk JSON format of in-process models. Only the fields
// relevant to Kind are read.
type Envelope struct {
	Kind         string   `json:"kind"`
	Name         string   `json:"name,omitempty"`
	FeatureNames []string `json:"feature_names,omitempty"`

	// logistic, linear_svm
	Bias      float64   `json:"bias,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`

	// tree
	Nodes []TreeNode `json:"nodes,omitempty"`

	// knn
	K      int         `json:"k,omitempty"`
	Points [][]float64 `json:"points,omitempty"`
	Labels []int       `json:"labels,omitempty"`

	// majority
	Class int `json:"class,omitempty"`
}

// TreeNode is one node of a flattened decision tree. Internal nodes route
// rows with features[Feature] <= Split to Left, others to Right. Leaves
// (Left == Right == -1) carry the positive-class probability in Value.
type TreeNode struct {
	Feature int     `json:"feature"`
	Split   float64 `json:"split"`
	Left    int     `json:"left"`
	Right   int     `json:"right"`
	Value   float64 `json:"value"`
}

// ReadEnvelope reads and decodes an envelope file.
func ReadEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}
	return &env, nil
}

// WriteEnvelope persists an envelope as indented JSON.
func WriteEnvelope(path string, env *Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnvelope builds an in-process model from a decoded envelope.
func LoadEnvelope(env *Envelope) (Model, error) {
	base := baseModel{name: env.Name, width: len(env.FeatureNames)}

	switch env.Kind {
	case KindLogistic:
		if len(env.Weights) == 0 {
			return nil, fmt.Errorf("logistic model has no weights")
		}
		if err := base.checkWidth(len(env.Weights)); err != nil {
			return nil, fmt.Errorf("logistic model: %w", err)
		}
		threshold := 0.5
		if env.Threshold != nil {
			threshold = *env.Threshold
		}
		return &LogisticModel{baseModel: base.withWidth(len(env.Weights)), Bias: env.Bias, Weights: env.Weights, Threshold: threshold}, nil

	case KindLinearSVM:
		if len(env.Weights) == 0 {
			return nil, fmt.Errorf("linear_svm model has no weights")
		}
		if err := base.checkWidth(len(env.Weights)); err != nil {
			return nil, fmt.Errorf("linear_svm model: %w", err)
		}
		return &LinearSVMModel{baseModel: base.withWidth(len(env.Weights)), Bias: env.Bias, Weights: env.Weights}, nil

	case KindTree:
		if err := validateTree(env.Nodes, base.width); err != nil {
			return nil, err
		}
		return &TreeModel{baseModel: base, Nodes: env.Nodes}, nil

	case KindKNN:
		if env.K <= 0 {
			return nil, fmt.Errorf("knn model needs k > 0, got %d", env.K)
		}
		if len(env.Points) == 0 || len(env.Points) != len(env.Labels) {
			return nil, fmt.Errorf("knn model has %d points and %d labels", len(env.Points), len(env.Labels))
		}
		if err := validatePoints(env.Points, env.Labels); err != nil {
			return nil, err
		}
		if err := base.checkWidth(len(env.Points[0])); err != nil {
			return nil, fmt.Errorf("knn model: %w", err)
		}
		return &KNNModel{baseModel: base.withWidth(len(env.Points[0])), K: env.K, Points: env.Points, Labels: env.Labels}, nil

	case KindMajority:
		if env.Class != 0 && env.Class != 1 {
			return nil, fmt.Errorf("majority model class must be 0 or 1, got %d", env.Class)
		}
		return &MajorityModel{baseModel: base, Class: env.Class}, nil

	case "":
		return nil, fmt.Errorf("model envelope has no kind")
	default:
		return nil, fmt.Errorf("unsupported model kind %q", env.Kind)
	}
}

type baseModel struct {
	name  string
	width int // expected feature count, 0 when unknown
}

func (b baseModel) Name() string { return b.name }

// checkWidth rejects parameters whose length disagrees with the declared
// feature names.
func (b baseModel) checkWidth(n int) error {
	if b.width != 0 && b.width != n {
		return fmt.Errorf("%d feature names but %d parameters", b.width, n)
	}
	return nil
}

func (b baseModel) withWidth(n int) baseModel {
	if b.width == 0 {
		b.width = n
	}
	return b
}

// checkRows rejects feature rows of the wrong width and honours cancellation.
func (b baseModel) checkRows(ctx context.Context, features [][]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.width == 0 {
		return nil
	}
	for i, row := range features {
		if len(row) != b.width {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), b.width)
		}
	}
	return nil
}

// LogisticModel is a logistic regression: score = sigmoid(bias + w·x).
type LogisticModel struct {
	baseModel
	Bias      float64
	Weights   []float64
	Threshold float64
}

func (m *LogisticModel) CanScore() bool { return true }

func (m *LogisticModel) PredictScore(ctx context.Context, features [][]float64) ([]float64, error) {
	if err := m.checkRows(ctx, features); err != nil {
		return nil, err
	}
	scores := make([]float64, len(features))
	for i, row := range features {
		scores[i] = sigmoid(m.Bias + dot(m.Weights, row))
	}
	return scores, nil
}

func (m *LogisticModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	scores, err := m.PredictScore(ctx, features)
	if err != nil {
		return nil, err
	}
	return thresholdLabels(scores, m.Threshold), nil
}

// LinearSVMModel classifies by the sign of the margin. It has no calibrated
// probability output, so it does not implement Scorer.
type LinearSVMModel struct {
	baseModel
	Bias    float64
	Weights []float64
}

func (m *LinearSVMModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	if err := m.checkRows(ctx, features); err != nil {
		return nil, err
	}
	labels := make([]int, len(features))
	for i, row := range features {
		if m.Bias+dot(m.Weights, row) >= 0 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// TreeModel walks a flattened decision tree from node 0.
type TreeModel struct {
	baseModel
	Nodes []TreeNode
}

func (m *TreeModel) CanScore() bool { return true }

func (m *TreeModel) PredictScore(ctx context.Context, features [][]float64) ([]float64, error) {
	if err := m.checkRows(ctx, features); err != nil {
		return nil, err
	}
	scores := make([]float64, len(features))
	for i, row := range features {
		n := m.Nodes[0]
		for n.Left >= 0 {
			if n.Feature >= len(row) {
				return nil, fmt.Errorf("row %d has no feature %d", i, n.Feature)
			}
			if row[n.Feature] <= n.Split {
				n = m.Nodes[n.Left]
			} else {
				n = m.Nodes[n.Right]
			}
		}
		scores[i] = n.Value
	}
	return scores, nil
}

func (m *TreeModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	scores, err := m.PredictScore(ctx, features)
	if err != nil {
		return nil, err
	}
	return thresholdLabels(scores, 0.5), nil
}

// validateTree rejects cycles, dangling children and out-of-range leaves.
// Children must have a higher index than their parent. A width > 0 also
// bounds the split feature indexes.
func validateTree(nodes []TreeNode, width int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("tree model has no nodes")
	}
	for i, n := range nodes {
		leaf := n.Left < 0 && n.Right < 0
		if leaf {
			if n.Value < 0 || n.Value > 1 {
				return fmt.Errorf("tree leaf %d value %v outside [0,1]", i, n.Value)
			}
			continue
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(nodes) || n.Right >= len(nodes) {
			return fmt.Errorf("tree node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
		if n.Feature < 0 || (width > 0 && n.Feature >= width) {
			return fmt.Errorf("tree node %d has invalid feature index %d", i, n.Feature)
		}
	}
	return nil
}

// validatePoints requires equal-width reference points with binary labels.
func validatePoints(points [][]float64, labels []int) error {
	width := len(points[0])
	if width == 0 {
		return fmt.Errorf("knn point 0 has no features")
	}
	for i, p := range points {
		if len(p) != width {
			return fmt.Errorf("knn point %d has %d features, point 0 has %d", i, len(p), width)
		}
		if labels[i] != 0 && labels[i] != 1 {
			return fmt.Errorf("knn label %d must be 0 or 1, got %d", i, labels[i])
		}
	}
	return nil
}

// KNNModel scores a row by the positive fraction among its K nearest
// reference points (Euclidean distance, ties broken by lower index).
type KNNModel struct {
	baseModel
	K      int
	Points [][]float64
	Labels []int
}

func (m *KNNModel) CanScore() bool { return true }

func (m *KNNModel) PredictScore(ctx context.Context, features [][]float64) ([]float64, error) {
	if err := m.checkRows(ctx, features); err != nil {
		return nil, err
	}
	k := m.K
	if k > len(m.Points) {
		k = len(m.Points)
	}

	type neighbour struct {
		dist float64
		idx  int
	}
	scores := make([]float64, len(features))
	buf := make([]neighbour, len(m.Points))
	for i, row := range features {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j, p := range m.Points {
			buf[j] = neighbour{dist: distance(row, p), idx: j}
		}
		sort.Slice(buf, func(a, b int) bool {
			if buf[a].dist != buf[b].dist {
				return buf[a].dist < buf[b].dist
			}
			return buf[a].idx < buf[b].idx
		})
		pos := 0
		for _, nb := range buf[:k] {
			pos += m.Labels[nb.idx]
		}
		scores[i] = float64(pos) / float64(k)
	}
	return scores, nil
}

func (m *KNNModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	scores, err := m.PredictScore(ctx, features)
	if err != nil {
		return nil, err
	}
	return thresholdLabels(scores, 0.5), nil
}

// MajorityModel always predicts one class. It is the "lazy" baseline a
// useful model has to beat on imbalanced data.
type MajorityModel struct {
	baseModel
	Class int
}

func (m *MajorityModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels := make([]int, len(features))
	for i := range labels {
		labels[i] = m.Class
	}
	return labels, nil
}

func thresholdLabels(scores []float64, threshold float64) []int {
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s >= threshold {
			labels[i] = 1
		}
	}
	return labels
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// dot and distance panic on unequal lengths; LoadEnvelope and checkRows
// guarantee equal widths.
func dot(w, x []float64) float64 {
	return floats.Dot(w, x)
}

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}
