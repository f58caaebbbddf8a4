package synth

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/feature"
	"github.com/cdoepmann/torsynth/synth/fit"
)

// Input is one historical consensus blob with a label for error
// reporting.
type Input struct {
	Name string
	Text string
}

// PipelineConfig configures a scaling run.
type PipelineConfig struct {
	Fit  fit.Config
	Seed int64
	// Workers bounds parse/extract parallelism; <= 0 uses GOMAXPROCS.
	Workers int
}

// TargetResult is the outcome of synthesizing one target. A failed
// target carries its error and does not abort the other targets.
type TargetResult struct {
	Target   Target
	Document *consensus.Document
	Err      error
}

// Result is the output of a pipeline run: the extracted feature time
// series, the fitted model, and one result per requested target.
type Result struct {
	Features []*feature.FeatureSet
	Model    *fit.GrowthModel
	Targets  []TargetResult
}

// Run executes the scaling pipeline: parse and extract every historical
// input (in parallel, order preserved), fit the growth model once, then
// synthesize every target.
//
// Any historical document that fails to parse aborts the whole run with
// the originating format error; historical data is assumed curated and
// silently skipping a bad input would corrupt the extrapolation.
func Run(inputs []Input, targets []Target, cfg PipelineConfig) (*Result, error) {
	if len(inputs) == 0 {
		return nil, &fit.InsufficientDataError{Distinct: 0}
	}

	features, err := extractAll(inputs, cfg.Workers)
	if err != nil {
		return nil, err
	}

	// order the history by valid-after so "most recent" is well defined
	// regardless of input file ordering
	sort.SliceStable(features, func(a, b int) bool {
		return features[a].ValidAfter.Before(features[b].ValidAfter)
	})

	origin := features[0].ValidAfter
	points := make([]fit.Point, len(features))
	for i, fs := range features {
		points[i] = fit.Point{
			Scale:    fs.ValidAfter.Sub(origin).Hours(),
			Features: fs,
		}
	}

	model, err := fit.Fit(points, cfg.Fit)
	if err != nil {
		return nil, err
	}
	logrus.Infof("fitted growth model over %d consensuses (%s .. %s)",
		len(features), origin.Format("2006-01-02"), model.Latest.ValidAfter.Format("2006-01-02"))

	result := &Result{
		Features: features,
		Model:    model,
		Targets:  make([]TargetResult, len(targets)),
	}

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			key := NewSynthesisKey(cfg.Seed ^ fnv1a64(fmt.Sprintf("target_%d", i)))
			doc, err := Synthesize(model, target, NewPartitionedRNG(key))
			if err != nil {
				logrus.Warnf("target %s failed: %v", target, err)
			}
			result.Targets[i] = TargetResult{Target: target, Document: doc, Err: err}
		}(i, target)
	}
	wg.Wait()

	return result, nil
}

// extractAll parses and extracts all inputs over a bounded worker pool,
// failing fast on the first (by input order) malformed document.
func extractAll(inputs []Input, workers int) ([]*feature.FeatureSet, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	features := make([]*feature.FeatureSet, len(inputs))
	errs := make([]error, len(inputs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc, err := consensus.Parse(inputs[i].Text)
				if err != nil {
					errs[i] = fmt.Errorf("input %s: %w", inputs[i].Name, err)
					continue
				}
				features[i] = feature.Extract(doc)
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			var formatErr *consensus.FormatError
			if errors.As(err, &formatErr) {
				logrus.Errorf("aborting run: %v", err)
			}
			return nil, err
		}
	}
	return features, nil
}
