package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdoepmann/torsynth/synth"
	"github.com/cdoepmann/torsynth/synth/fit"
)

var (
	scaleConsensusPaths []string // historical consensus input files
	scaleSpecPath       string   // ScaleSpec YAML, overrides the direct flags
	scaleSeed           int64    // seed for the synthesis RNG
	scalePopulations    []int    // target router counts
	scaleDates          []string // target dates, YYYY-MM-DD
	scaleExitFactor     float64  // emphasis applied to the Exit prevalence
	scaleGuardFactor    float64  // emphasis applied to the Guard prevalence
	scaleRecomputeBww   bool     // rederive bandwidth-weights instead of carrying them forward
	scaleQuantities     []string // quantities to model (default: all)
	scalePopMethod      string   // extrapolation method for the population curve
	scaleBwMethod       string   // extrapolation method for bandwidth curves
	scaleOutputDir      string   // directory for the synthetic consensuses
	scaleWorkers        int      // parse/extract parallelism
)

var scaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Fit growth models against historical consensuses and synthesize scaled ones",
	Run: func(cmd *cobra.Command, args []string) {
		if len(scaleConsensusPaths) == 0 {
			logrus.Fatalf("at least one --consensus flag is required")
		}

		var cfg synth.PipelineConfig
		var targets []synth.Target
		if scaleSpecPath != "" {
			spec, err := synth.LoadScaleSpec(scaleSpecPath)
			if err != nil {
				logrus.Fatalf("Failed to load scale spec: %v", err)
			}
			cfg = spec.PipelineConfig()
			targets = spec.TargetList()
		} else {
			cfg, targets = configFromFlags()
		}

		names, texts := readConsensusFiles(scaleConsensusPaths)
		inputs := make([]synth.Input, len(names))
		for i := range names {
			inputs[i] = synth.Input{Name: names[i], Text: texts[i]}
		}

		result, err := synth.Run(inputs, targets, cfg)
		if err != nil {
			logrus.Fatalf("Scaling run failed: %v", err)
		}

		failed := 0
		for i, tr := range result.Targets {
			if tr.Err != nil {
				logrus.Errorf("Target %s: %v", tr.Target, tr.Err)
				failed++
				continue
			}
			if err := writeSynthetic(tr, i, len(result.Targets)); err != nil {
				logrus.Fatalf("Failed to write output: %v", err)
			}
		}
		if failed > 0 {
			logrus.Fatalf("%d of %d targets failed", failed, len(result.Targets))
		}
	},
}

// configFromFlags builds the run configuration from the direct CLI
// flags when no spec file is given.
func configFromFlags() (synth.PipelineConfig, []synth.Target) {
	cfg := synth.PipelineConfig{
		Seed:    scaleSeed,
		Workers: scaleWorkers,
		Fit: fit.Config{
			Methods: map[fit.Quantity]fit.Method{},
		},
	}
	for _, q := range scaleQuantities {
		quantity, err := fit.ParseQuantity(q)
		if err != nil {
			logrus.Fatalf("Invalid --quantity: %v", err)
		}
		cfg.Fit.Quantities = append(cfg.Fit.Quantities, quantity)
	}
	for quantity, raw := range map[fit.Quantity]string{
		fit.QuantityPopulation: scalePopMethod,
		fit.QuantityBandwidth:  scaleBwMethod,
	} {
		method, err := fit.ParseMethod(raw)
		if err != nil {
			logrus.Fatalf("Invalid method for %s: %v", quantity, err)
		}
		cfg.Fit.Methods[quantity] = method
	}

	if len(scalePopulations) == 0 && len(scaleDates) == 0 {
		logrus.Fatalf("at least one --target-population or --target-date is required (or use --spec)")
	}
	var targets []synth.Target
	for _, pop := range scalePopulations {
		targets = append(targets, synth.Target{
			Population:       pop,
			ExitFactor:       scaleExitFactor,
			GuardFactor:      scaleGuardFactor,
			RecomputeWeights: scaleRecomputeBww,
		})
	}
	for _, raw := range scaleDates {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			logrus.Fatalf("Invalid --target-date %q: %v", raw, err)
		}
		targets = append(targets, synth.Target{
			Date:             date,
			ExitFactor:       scaleExitFactor,
			GuardFactor:      scaleGuardFactor,
			RecomputeWeights: scaleRecomputeBww,
		})
	}
	return cfg, targets
}

// writeSynthetic writes one synthesized document: to the output
// directory when given, otherwise to stdout.
func writeSynthetic(tr synth.TargetResult, idx, total int) error {
	text := tr.Document.Serialize()
	if scaleOutputDir == "" {
		if total > 1 {
			fmt.Printf("# target %s\n", tr.Target)
		}
		fmt.Print(text)
		return nil
	}
	if err := os.MkdirAll(scaleOutputDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("torsynth-%03d-%d.consensus", idx, len(tr.Document.Routers))
	path := filepath.Join(scaleOutputDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return err
	}
	logrus.Infof("Wrote %s (%d routers)", path, len(tr.Document.Routers))
	return nil
}

func init() {
	scaleCmd.Flags().StringArrayVar(&scaleConsensusPaths, "consensus", nil, "Path to a historical consensus file (can be repeated)")
	scaleCmd.Flags().StringVar(&scaleSpecPath, "spec", "", "Path to a ScaleSpec YAML file (overrides target flags)")
	scaleCmd.Flags().Int64Var(&scaleSeed, "seed", 42, "Seed for the synthesis RNG")
	scaleCmd.Flags().IntSliceVar(&scalePopulations, "target-population", nil, "Target router count (can be repeated)")
	scaleCmd.Flags().StringSliceVar(&scaleDates, "target-date", nil, "Target date YYYY-MM-DD, placed on the population curve (can be repeated)")
	scaleCmd.Flags().Float64Var(&scaleExitFactor, "exit-factor", 1.0, "Emphasis factor applied to the Exit flag prevalence")
	scaleCmd.Flags().Float64Var(&scaleGuardFactor, "guard-factor", 1.0, "Emphasis factor applied to the Guard flag prevalence")
	scaleCmd.Flags().BoolVar(&scaleRecomputeBww, "recompute-weights", false, "Rederive bandwidth-weights from the synthetic population")
	scaleCmd.Flags().StringSliceVar(&scaleQuantities, "quantity", nil, "Quantity to model: population, bandwidth, flags, families, as (default all; can be repeated)")
	scaleCmd.Flags().StringVar(&scalePopMethod, "population-method", "linear", "Extrapolation method for the population curve (linear, powerlaw, constant)")
	scaleCmd.Flags().StringVar(&scaleBwMethod, "bandwidth-method", "linear", "Extrapolation method for bandwidth curves (linear, powerlaw, constant)")
	scaleCmd.Flags().StringVarP(&scaleOutputDir, "output-dir", "o", "", "Directory to save the synthetic consensuses to (default stdout)")
	scaleCmd.Flags().IntVar(&scaleWorkers, "workers", 0, "Parse/extract worker count (default GOMAXPROCS)")
	_ = scaleCmd.MarkFlagRequired("consensus")

	rootCmd.AddCommand(scaleCmd)
}
