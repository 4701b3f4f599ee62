package main

import (
	"fmt"

	"model-arena/internal/dataset"
	"model-arena/internal/seed"

	"github.com/spf13/cobra"
)

func newSeedCommand() *cobra.Command {
	opts := seed.DefaultOptions()
	var noModels bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic match dataset and sample models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := a.settings
			if !cmd.Flags().Changed("last-year") && opts.LastYear < s.TestFromYear {
				opts.LastYear = s.TestFromYear
			}
			if opts.FirstYear > opts.LastYear || opts.MatchesPerYear < 1 {
				return fmt.Errorf("invalid seed range %d-%d with %d matches per year", opts.FirstYear, opts.LastYear, opts.MatchesPerYear)
			}
			samples := seed.Matches(opts)

			format, err := a.datasetFormat()
			if err != nil {
				return err
			}
			switch format {
			case dataset.FormatCSV:
				err = seed.WriteCSV(s.DatasetPath, samples)
			case dataset.FormatBoltDB:
				store, serr := a.store(dataset.StoreDir(s.DatasetPath))
				if serr != nil {
					return serr
				}
				err = seed.WriteStore(store, samples)
			default:
				err = fmt.Errorf("unsupported dataset format %q", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d matches (%d-%d) to %s\n", len(samples), opts.FirstYear, opts.LastYear, s.DatasetPath)

			if noModels {
				return nil
			}
			paths, err := seed.WriteModels(s.ModelsDir, samples, s.TestFromYear)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d model artifacts to %s\n", len(paths), s.ModelsDir)
			return nil
		},
	}

	cmd.Flags().StringP("models", "m", "", "Models directory")
	cmd.Flags().StringP("dataset", "d", "", "Dataset path: a .csv file or an arena store directory")
	cmd.Flags().String("format", "", "Dataset format: csv, boltdb or auto")
	cmd.Flags().Int("test-from-year", 0, "First season of the test partition")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", opts.Seed, "Random seed")
	cmd.Flags().IntVar(&opts.FirstYear, "first-year", opts.FirstYear, "First generated season")
	cmd.Flags().IntVar(&opts.LastYear, "last-year", opts.LastYear, "Last generated season")
	cmd.Flags().IntVar(&opts.MatchesPerYear, "matches", opts.MatchesPerYear, "Matches per season")
	cmd.Flags().BoolVar(&noModels, "no-models", false, "Only write the dataset")
	return cmd
}
