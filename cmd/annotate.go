package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdoepmann/torsynth/consensus"
)

var (
	annotateConsensusPath string
	annotateASNDbPath     string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate a consensus with AS numbers from a CIDR database",
	Run: func(cmd *cobra.Command, args []string) {
		names, texts := readConsensusFiles([]string{annotateConsensusPath})

		db, err := consensus.LoadASNDb(annotateASNDbPath)
		if err != nil {
			logrus.Fatalf("Failed to load ASN database: %v", err)
		}

		doc, err := consensus.Parse(texts[0])
		if err != nil {
			logrus.Fatalf("Failed to parse %s: %v", names[0], err)
		}

		unmatched := 0
		for _, router := range doc.Routers {
			asn, ok := db.Lookup(router.Address)
			if !ok {
				unmatched++
				continue
			}
			router.ASNumber = asn
		}
		if unmatched > 0 {
			logrus.Warnf("%d of %d routers had no matching AS prefix", unmatched, len(doc.Routers))
		}

		fmt.Print(doc.Serialize())
	},
}

func init() {
	annotateCmd.Flags().StringVar(&annotateConsensusPath, "consensus", "", "Path to the consensus file to annotate")
	annotateCmd.Flags().StringVar(&annotateASNDbPath, "asn-db", "", "Path to the CIDR-to-ASN CSV database")
	_ = annotateCmd.MarkFlagRequired("consensus")
	_ = annotateCmd.MarkFlagRequired("asn-db")

	rootCmd.AddCommand(annotateCmd)
}
