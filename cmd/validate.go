package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdoepmann/torsynth/consensus"
)

var (
	validateConsensusPaths []string
	validateWeights        bool
	validateFingerprints   []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check consensus files for structural consistency",
	Run: func(cmd *cobra.Command, args []string) {
		required := make([]consensus.Fingerprint, len(validateFingerprints))
		for i, hex := range validateFingerprints {
			fp, err := consensus.FingerprintFromHex(hex)
			if err != nil {
				logrus.Fatalf("Invalid --fingerprint: %v", err)
			}
			required[i] = fp
		}

		names, texts := readConsensusFiles(validateConsensusPaths)

		failed := 0
		for i, text := range texts {
			if err := validateOne(text, required); err != nil {
				logrus.Errorf("%s: %v", names[i], err)
				failed++
				continue
			}
			logrus.Infof("%s: ok", names[i])
		}
		if failed > 0 {
			logrus.Fatalf("%d of %d consensuses failed validation", failed, len(names))
		}
	},
}

func validateOne(text string, required []consensus.Fingerprint) error {
	doc, err := consensus.Parse(text)
	if err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if validateWeights {
		if err := doc.VerifyWeights(); err != nil {
			return err
		}
	}
	if len(required) > 0 {
		listed := make(map[consensus.Fingerprint]bool, len(doc.Routers))
		for _, r := range doc.Routers {
			listed[r.Fingerprint] = true
		}
		for _, fp := range required {
			if !listed[fp] {
				return fmt.Errorf("relay %s is not listed", fp.Hex())
			}
		}
	}
	return nil
}

func init() {
	validateCmd.Flags().StringArrayVar(&validateConsensusPaths, "consensus", nil, "Path to a consensus file (can be repeated)")
	validateCmd.Flags().BoolVar(&validateWeights, "weights", false, "Also rederive and compare the bandwidth-weights")
	validateCmd.Flags().StringArrayVar(&validateFingerprints, "fingerprint", nil, "Hex relay fingerprint that must be listed (can be repeated)")
	_ = validateCmd.MarkFlagRequired("consensus")

	rootCmd.AddCommand(validateCmd)
}
