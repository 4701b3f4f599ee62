package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"model-arena/internal/eval"

	"github.com/rs/zerolog/log"
)

// CSVSource reads a header row followed by one observation per line. The
// label and year columns are required; every other column is a numeric
// feature in header order.
type CSVSource struct {
	path string
	opts Options
}

// NewCSVSource creates a CSV dataset provider.
func NewCSVSource(path string, opts Options) *CSVSource {
	return &CSVSource{path: path, opts: opts.withDefaults()}
}

// Load implements eval.DatasetProvider.
func (s *CSVSource) Load(ctx context.Context) (*eval.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, &eval.DataUnavailableError{Source: s.path, Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &eval.DataUnavailableError{Source: s.path, Err: fmt.Errorf("failed to read CSV header: %w", err)}
	}

	labelIdx, yearIdx := -1, -1
	var featureIdx []int
	var featureNames []string
	for i, col := range header {
		col = strings.TrimSpace(col)
		switch col {
		case s.opts.LabelColumn:
			labelIdx = i
		case s.opts.YearColumn:
			yearIdx = i
		default:
			featureIdx = append(featureIdx, i)
			featureNames = append(featureNames, col)
		}
	}
	if labelIdx < 0 {
		return nil, &eval.DataUnavailableError{Source: s.path, Err: fmt.Errorf("missing label column %q", s.opts.LabelColumn)}
	}
	if yearIdx < 0 {
		return nil, &eval.DataUnavailableError{Source: s.path, Err: fmt.Errorf("missing year column %q", s.opts.YearColumn)}
	}
	if len(featureIdx) == 0 {
		return nil, &eval.DataUnavailableError{Source: s.path, Err: fmt.Errorf("no feature columns")}
	}

	var rows []row
	skipped := 0
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				log.Warn().Str("file", s.path).Int("line", line).Err(err).Msg("Skipping malformed CSV row")
				continue
			}
			return nil, &eval.DataUnavailableError{Source: s.path, Err: err}
		}

		r, err := parseRecord(record, len(header), labelIdx, yearIdx, featureIdx)
		if err != nil {
			skipped++
			log.Warn().Str("file", s.path).Int("line", line).Err(err).Msg("Skipping malformed CSV row")
			continue
		}
		rows = append(rows, r)
	}

	ds, err := partition(s.path, featureNames, rows, s.opts.TestFromYear)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("file", s.path).
		Int("train", len(ds.TrainLabels)).
		Int("test", ds.TestSize()).
		Int("features", len(featureNames)).
		Int("skipped", skipped).
		Int("test_from_year", s.opts.TestFromYear).
		Msg("CSV dataset loaded")

	return ds, nil
}

func parseRecord(record []string, width, labelIdx, yearIdx int, featureIdx []int) (row, error) {
	if len(record) != width {
		return row{}, fmt.Errorf("expected %d fields, got %d", width, len(record))
	}

	year, err := strconv.Atoi(strings.TrimSpace(record[yearIdx]))
	if err != nil {
		return row{}, fmt.Errorf("invalid year %q", record[yearIdx])
	}

	label, err := strconv.Atoi(strings.TrimSpace(record[labelIdx]))
	if err != nil || (label != 0 && label != 1) {
		return row{}, fmt.Errorf("invalid label %q", record[labelIdx])
	}

	features := make([]float64, len(featureIdx))
	for j, idx := range featureIdx {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
		if err != nil {
			return row{}, fmt.Errorf("invalid feature value %q", record[idx])
		}
		features[j] = v
	}
	return row{year: year, features: features, label: label}, nil
}
