// Package dataset loads labelled match data and splits it into the fixed
// train/test partition the arena evaluates against.
//
// The split is temporal: rows whose year is at or after TestFromYear form
// the test set. Rows keep their source order and nothing is shuffled, so
// repeated loads return identical partitions.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"model-arena/internal/eval"
	"model-arena/internal/storage"
)

const (
	FormatCSV    = "csv"
	FormatBoltDB = "boltdb"
	FormatAuto   = "auto"

	DefaultLabelColumn  = "label"
	DefaultYearColumn   = "year"
	DefaultTestFromYear = 2024
)

// Options control column naming and the split point.
type Options struct {
	LabelColumn  string
	YearColumn   string
	TestFromYear int
}

func (o Options) withDefaults() Options {
	if o.LabelColumn == "" {
		o.LabelColumn = DefaultLabelColumn
	}
	if o.YearColumn == "" {
		o.YearColumn = DefaultYearColumn
	}
	if o.TestFromYear == 0 {
		o.TestFromYear = DefaultTestFromYear
	}
	return o
}

// DetectFormat picks a format from the path: .csv files are CSV, and
// directories or .db files are arena stores.
func DetectFormat(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".db") {
		return FormatBoltDB, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &eval.DataUnavailableError{Source: path, Err: err}
	}
	if info.IsDir() {
		return FormatBoltDB, nil
	}
	return "", &eval.DataUnavailableError{Source: path, Err: fmt.Errorf("cannot detect dataset format")}
}

// StoreDir returns the data directory for a bbolt dataset path, accepting
// either the directory or the arena.db file inside it.
func StoreDir(path string) string {
	if filepath.Base(path) == storage.DBFile {
		return filepath.Dir(path)
	}
	return path
}

// row is one parsed observation before partitioning.
type row struct {
	year     int
	features []float64
	label    int
}

// partition splits rows by year. Widths must agree with the first row and
// with featureNames when those are known.
func partition(source string, featureNames []string, rows []row, testFromYear int) (*eval.Dataset, error) {
	if len(rows) == 0 {
		return nil, &eval.DataUnavailableError{Source: source, Err: fmt.Errorf("no rows")}
	}

	width := len(rows[0].features)
	if len(featureNames) > 0 && len(featureNames) != width {
		return nil, &eval.DataUnavailableError{
			Source: source,
			Err:    fmt.Errorf("schema names %d features, rows have %d", len(featureNames), width),
		}
	}

	ds := &eval.Dataset{FeatureNames: featureNames}
	for i, r := range rows {
		if len(r.features) != width {
			return nil, &eval.DataUnavailableError{
				Source: source,
				Err:    fmt.Errorf("row %d has %d features, expected %d", i, len(r.features), width),
			}
		}
		if r.year >= testFromYear {
			ds.TestFeatures = append(ds.TestFeatures, r.features)
			ds.TestLabels = append(ds.TestLabels, r.label)
		} else {
			ds.TrainFeatures = append(ds.TrainFeatures, r.features)
			ds.TrainLabels = append(ds.TrainLabels, r.label)
		}
	}

	if ds.TestSize() == 0 {
		return nil, &eval.DataUnavailableError{
			Source: source,
			Err:    fmt.Errorf("no rows from %d onwards for the test set", testFromYear),
		}
	}
	return ds, nil
}
