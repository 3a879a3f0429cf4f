package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/maruel/modelprov/internal/fingerprint"
	"github.com/spf13/cobra"
)

func newInferCmd(g *globalFlags) *cobra.Command {
	var flags struct {
		features []float64
		user     string
		asJSON   bool
	}
	cmd := &cobra.Command{
		Use:   "infer FINGERPRINT",
		Short: "Predict one sample with a registered model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fingerprint.Validate(args[0]); err != nil {
				return err
			}
			d, err := g.dispatcher()
			if err != nil {
				return err
			}
			res, err := d.Infer(cmd.Context(), args[0], flags.features, flags.user)
			if err != nil {
				return err
			}
			if flags.asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"prediction":       res.Prediction,
					"expectedFeatures": res.ExpectedFeatures,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Prediction: %s\n", formatFloats(res.Prediction))
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64SliceVar(&flags.features, "features", nil, "Comma separated feature values (required)")
	f.StringVar(&flags.user, "user", "", "User recorded in the usage ledger")
	f.BoolVar(&flags.asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}

func newEvaluateCmd(g *globalFlags) *cobra.Command {
	var flags struct {
		dataset string
		user    string
	}
	cmd := &cobra.Command{
		Use:   "evaluate FINGERPRINT",
		Short: "Measure the accuracy of a model on a labelled CSV data set",
		Long: "Each row of the data set holds the feature values followed by the label.\n" +
			"A first row that is not numeric is treated as a header.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fingerprint.Validate(args[0]); err != nil {
				return err
			}
			f, err := os.Open(flags.dataset)
			if err != nil {
				return err
			}
			samples, labels, err := readDataset(f)
			if err2 := f.Close(); err == nil {
				err = err2
			}
			if err != nil {
				return fmt.Errorf("%s: %w", flags.dataset, err)
			}
			d, err := g.dispatcher()
			if err != nil {
				return err
			}
			ev, err := d.Evaluate(cmd.Context(), args[0], samples, labels, flags.user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Accuracy: %.4f (%d/%d)\n", ev.Accuracy, ev.Correct, ev.Samples)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.dataset, "dataset", "", "CSV file of samples (required)")
	f.StringVar(&flags.user, "user", "", "User recorded in the usage ledger")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

// readDataset parses rows of features followed by a label.
func readDataset(r io.Reader) ([][]float64, []float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	var samples [][]float64
	var labels []float64
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("record %d: need at least one feature and a label", n)
		}
		row := make([]float64, len(rec))
		for i, s := range rec {
			if row[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				break
			}
		}
		if err != nil {
			if n == 1 {
				continue
			}
			return nil, nil, fmt.Errorf("record %d: %w", n, err)
		}
		samples = append(samples, row[:len(row)-1])
		labels = append(labels, row[len(row)-1])
	}
	if len(samples) == 0 {
		return nil, nil, errors.New("no samples")
	}
	return samples, labels, nil
}

func formatFloats(v []float64) string {
	s := make([]string, len(v))
	for i, f := range v {
		s[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(s, ", ")
}
