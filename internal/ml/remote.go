package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteModel is a classifier served over HTTP.
//
//	GET  <base>/metadata -> {"name": "...", "has_scores": true}
//	POST <base>/predict  {"features": [[...], ...], "scores": true}
//	                     -> {"labels": [...], "scores": [...]}
type RemoteModel struct {
	base      string
	name      string
	hasScores bool
	rest      *resty.Client
}

type remoteMetadata struct {
	Name      string `json:"name"`
	HasScores bool   `json:"has_scores"`
}

type remotePredictRequest struct {
	Features [][]float64 `json:"features"`
	Scores   bool        `json:"scores"`
}

type remotePredictResponse struct {
	Labels []int     `json:"labels"`
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewRemoteClient builds the shared HTTP client for remote models.
func NewRemoteClient(timeout time.Duration) *resty.Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return r
}

// LoadRemote fetches the model metadata to verify the endpoint is alive and
// to learn its score capability.
func LoadRemote(ctx context.Context, client *resty.Client, baseURL string) (*RemoteModel, error) {
	if client == nil {
		client = NewRemoteClient(0)
	}
	m := &RemoteModel{base: strings.TrimRight(baseURL, "/"), rest: client}

	meta := &remoteMetadata{}
	resp, err := client.R().
		SetContext(ctx).
		SetResult(meta).
		ForceContentType("application/json").
		Get(m.base + "/metadata")
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch metadata: %s", resp.Status())
	}

	m.name = meta.Name
	m.hasScores = meta.HasScores
	return m, nil
}

func (m *RemoteModel) Name() string   { return m.name }
func (m *RemoteModel) CanScore() bool { return m.hasScores }

func (m *RemoteModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	out, err := m.predict(ctx, features, false)
	if err != nil {
		return nil, err
	}
	return out.Labels, nil
}

func (m *RemoteModel) PredictScore(ctx context.Context, features [][]float64) ([]float64, error) {
	if !m.hasScores {
		return nil, fmt.Errorf("remote model %s has no score output", m.base)
	}
	out, err := m.predict(ctx, features, true)
	if err != nil {
		return nil, err
	}
	if out.Scores == nil {
		return nil, fmt.Errorf("remote model %s returned no scores", m.base)
	}
	return out.Scores, nil
}

func (m *RemoteModel) predict(ctx context.Context, features [][]float64, scores bool) (*remotePredictResponse, error) {
	out := &remotePredictResponse{}
	resp, err := m.rest.R().
		SetContext(ctx).
		SetBody(remotePredictRequest{Features: features, Scores: scores}).
		SetResult(out).
		SetError(out).
		ForceContentType("application/json").
		Post(m.base + "/predict")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("remote predict: %s: %s", resp.Status(), out.Error)
		}
		return nil, fmt.Errorf("remote predict: %s", resp.Status())
	}
	if out.Error != "" {
		return nil, fmt.Errorf("remote predict: %s", out.Error)
	}
	return out, nil
}
