package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/feature"
)

var extractConsensusPaths []string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract feature sets from consensus files and print them as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		names, texts := readConsensusFiles(extractConsensusPaths)

		features := make([]*feature.FeatureSet, 0, len(names))
		for i, text := range texts {
			doc, err := consensus.Parse(text)
			if err != nil {
				logrus.Fatalf("Failed to parse %s: %v", names[i], err)
			}
			features = append(features, feature.Extract(doc))
		}

		out, err := yaml.Marshal(features)
		if err != nil {
			logrus.Fatalf("Failed to marshal features: %v", err)
		}
		fmt.Print(string(out))
	},
}

func init() {
	extractCmd.Flags().StringArrayVar(&extractConsensusPaths, "consensus", nil, "Path to a consensus file (can be repeated)")
	_ = extractCmd.MarkFlagRequired("consensus")

	rootCmd.AddCommand(extractCmd)
}
