package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// inferenceRequest is written to the inference script's stdin.
type inferenceRequest struct {
	Op       string      `json:"op"`
	Features [][]float64 `json:"features,omitempty"`
}

// inferenceResponse is read from the inference script's stdout.
type inferenceResponse struct {
	Name      string    `json:"name,omitempty"`
	HasScores bool      `json:"has_scores"`
	Labels    []int     `json:"labels,omitempty"`
	Scores    []float64 `json:"scores,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// SubprocessModel runs a pickled/joblib/ONNX classifier through a Python
// inference script. Each call spawns the interpreter with the artifact path
// and exchanges one JSON document over stdin/stdout. The context deadline
// kills the interpreter.
//
// When no script is configured the bundled one is written to a private temp
// directory, which Close removes.
type SubprocessModel struct {
	name       string
	modelPath  string
	pythonPath string
	scriptPath string
	scriptDir  string // owned temp dir, empty for a configured script
	hasScores  bool
}

// SubprocessOptions configures how the interpreter is located.
type SubprocessOptions struct {
	PythonPath string // explicit interpreter; discovered when empty
	ScriptPath string // inference script; the bundled one is written when empty
}

// LoadSubprocess prepares a subprocess-backed model and runs a describe call
// to verify the artifact loads and to learn whether it can produce scores.
func LoadSubprocess(ctx context.Context, path string, opts SubprocessOptions) (*SubprocessModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model artifact not accessible: %w", err)
	}

	pythonPath := opts.PythonPath
	if pythonPath == "" {
		var err error
		if pythonPath, err = findPython(); err != nil {
			return nil, err
		}
	}

	m := &SubprocessModel{
		modelPath:  path,
		pythonPath: pythonPath,
		scriptPath: opts.ScriptPath,
	}
	if m.scriptPath == "" {
		dir, err := os.MkdirTemp("", "arena-inference-")
		if err != nil {
			return nil, fmt.Errorf("failed to create inference script: %w", err)
		}
		m.scriptDir = dir
		m.scriptPath = filepath.Join(dir, "arena_inference.py")
		if err := createInferenceScript(m.scriptPath); err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create inference script: %w", err)
		}
	} else if _, err := os.Stat(m.scriptPath); err != nil {
		return nil, fmt.Errorf("inference script not accessible: %w", err)
	}

	resp, err := m.call(ctx, inferenceRequest{Op: "describe"})
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("model health check failed: %w", err)
	}
	m.name = resp.Name
	m.hasScores = resp.HasScores

	log.Debug().
		Str("model_path", path).
		Str("python_path", pythonPath).
		Bool("has_scores", m.hasScores).
		Msg("Subprocess model loaded")

	return m, nil
}

// Close removes the bundled inference script, if this model wrote one.
func (m *SubprocessModel) Close() error {
	if m.scriptDir == "" {
		return nil
	}
	dir := m.scriptDir
	m.scriptDir = ""
	return os.RemoveAll(dir)
}

func (m *SubprocessModel) Name() string   { return m.name }
func (m *SubprocessModel) CanScore() bool { return m.hasScores }

func (m *SubprocessModel) Predict(ctx context.Context, features [][]float64) ([]int, error) {
	resp, err := m.call(ctx, inferenceRequest{Op: "predict", Features: features})
	if err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

func (m *SubprocessModel) PredictScore(ctx context.Context, features [][]float64) ([]float64, error) {
	if !m.hasScores {
		return nil, fmt.Errorf("model %s has no score output", m.modelPath)
	}
	resp, err := m.call(ctx, inferenceRequest{Op: "score", Features: features})
	if err != nil {
		return nil, err
	}
	return resp.Scores, nil
}

func (m *SubprocessModel) call(ctx context.Context, req inferenceRequest) (*inferenceResponse, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.pythonPath, m.scriptPath, m.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("python_path", m.pythonPath).
			Str("script_path", m.scriptPath).
			Str("model_path", m.modelPath).
			Str("op", req.Op).
			Str("stderr", stderr.String()).
			Bool("context_cancelled", ctx.Err() != nil).
			Msg("Python inference execution failed")

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("inference timed out after %v: %w", time.Since(start).Round(time.Millisecond), context.DeadlineExceeded)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// The script reports handled errors as JSON before exiting non-zero.
		var resp inferenceResponse
		if jsonErr := json.Unmarshal(stdout.Bytes(), &resp); jsonErr == nil && resp.Error != "" {
			return nil, fmt.Errorf("python inference error: %s", resp.Error)
		}
		if strings.Contains(stderr.String(), "No module named") {
			return nil, fmt.Errorf("python dependency missing: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("python inference failed: %w, stderr: %s", err, stderr.String())
	}

	var resp inferenceResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("python inference error: %s", resp.Error)
	}
	return &resp, nil
}

func findPython() (string, error) {
	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		}
		for _, venvPython := range candidates {
			if _, err := os.Stat(venvPython); err == nil {
				log.Info().Str("python_path", venvPython).Msg("Using virtual environment Python")
				return venvPython, nil
			}
		}
	}

	if wd, err := os.Getwd(); err == nil {
		for _, venv := range []string{"venv", ".venv"} {
			candidate := filepath.Join(wd, venv, "bin", "python3")
			if _, err := os.Stat(candidate); err == nil {
				log.Info().Str("python_path", candidate).Msg("Using project virtual environment Python")
				return candidate, nil
			}
		}
	}

	for _, candidate := range []string{"python3", "python"} {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no suitable Python 3 executable found; set PYTHON_PATH")
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""Arena inference bridge: one JSON request on stdin, one JSON response on stdout."""
import json
import os
import sys


def load(path):
    ext = os.path.splitext(path)[1].lower()
    if ext == ".onnx":
        import onnxruntime as ort
        return ("onnx", ort.InferenceSession(path))
    if ext == ".joblib":
        import joblib
        return ("sk", joblib.load(path))
    import pickle
    with open(path, "rb") as f:
        return ("sk", pickle.load(f))


def main():
    path = sys.argv[1]
    try:
        req = json.load(sys.stdin)
        flavour, model = load(path)
        op = req.get("op")
        if op == "describe":
            if flavour == "onnx":
                has_scores = len(model.get_outputs()) > 1
                name = os.path.basename(path)
            else:
                has_scores = hasattr(model, "predict_proba")
                name = type(model).__name__
            print(json.dumps({"name": name, "has_scores": has_scores}))
            return

        import numpy as np
        x = np.asarray(req["features"], dtype=np.float32 if flavour == "onnx" else np.float64)
        if flavour == "onnx":
            outputs = model.run(None, {model.get_inputs()[0].name: x})
            labels = [int(v) for v in outputs[0]]
            scores = None
            if len(outputs) > 1:
                probs = outputs[1]
                scores = [float(p[1]) if not isinstance(p, dict) else float(p.get(1, 0.0)) for p in probs]
        else:
            labels = [int(v) for v in model.predict(x)]
            scores = None
            if op == "score":
                scores = [float(p) for p in model.predict_proba(x)[:, 1]]
        print(json.dumps({"labels": labels, "scores": scores}))
    except Exception as e:
        print(json.dumps({"error": str(e)}))
        sys.exit(1)


if __name__ == "__main__":
    main()
`
	return os.WriteFile(scriptPath, []byte(script), 0o755)
}
