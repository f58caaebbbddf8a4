package synth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cdoepmann/torsynth/consensus"
	"github.com/cdoepmann/torsynth/synth/fit"
)

// pipelineInputs serializes a three-consensus history of 20, 40, and 60
// routers observed a day apart.
func pipelineInputs() []Input {
	origin := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var inputs []Input
	for i, n := range []int{20, 40, 60} {
		doc := historyDoc(n, origin.Add(time.Duration(i)*24*time.Hour))
		inputs = append(inputs, Input{
			Name: doc.ValidAfter.Format("2006-01-02") + ".consensus",
			Text: doc.Serialize(),
		})
	}
	return inputs
}

// TestRun_EndToEnd verifies the full pipeline: parse, extract, fit, and
// synthesize one target.
func TestRun_EndToEnd(t *testing.T) {
	targets := []Target{{Population: 80}}
	result, err := Run(pipelineInputs(), targets, PipelineConfig{Seed: 42})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Features) != 3 {
		t.Fatalf("got %d feature sets, want 3", len(result.Features))
	}
	if result.Model.Latest.Routers != 60 {
		t.Errorf("Latest.Routers = %d, want 60", result.Model.Latest.Routers)
	}
	if len(result.Targets) != 1 {
		t.Fatalf("got %d target results, want 1", len(result.Targets))
	}
	tr := result.Targets[0]
	if tr.Err != nil {
		t.Fatalf("target failed: %v", tr.Err)
	}
	if len(tr.Document.Routers) != 80 {
		t.Errorf("got %d routers, want 80", len(tr.Document.Routers))
	}
	// the synthetic document must itself parse
	if _, err := consensus.Parse(tr.Document.Serialize()); err != nil {
		t.Errorf("synthetic document does not parse: %v", err)
	}
}

// TestRun_InputOrderIndependent verifies the history is reordered by
// valid-after before fitting.
func TestRun_InputOrderIndependent(t *testing.T) {
	inputs := pipelineInputs()
	reversed := []Input{inputs[2], inputs[0], inputs[1]}

	a, err := Run(inputs, []Target{{Population: 80}}, PipelineConfig{Seed: 42})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	b, err := Run(reversed, []Target{{Population: 80}}, PipelineConfig{Seed: 42})
	if err != nil {
		t.Fatalf("Run on reversed inputs failed: %v", err)
	}
	if a.Targets[0].Document.Serialize() != b.Targets[0].Document.Serialize() {
		t.Error("input file order changed the synthetic output")
	}
}

// TestRun_FailsFastOnMalformedInput verifies one bad historical
// document aborts the run with its format error and input name.
func TestRun_FailsFastOnMalformedInput(t *testing.T) {
	inputs := pipelineInputs()
	inputs[1].Name = "broken.consensus"
	inputs[1].Text = strings.Replace(inputs[1].Text, "vote-status consensus", "vote-status vote", 1)

	_, err := Run(inputs, []Target{{Population: 80}}, PipelineConfig{Seed: 42})
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var ferr *consensus.FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("error is %T (%v), want to wrap *FormatError", err, err)
	}
	if !strings.Contains(err.Error(), "broken.consensus") {
		t.Errorf("error %q does not name the bad input", err)
	}
}

// TestRun_PerTargetIsolation verifies one infeasible target does not
// abort the others.
func TestRun_PerTargetIsolation(t *testing.T) {
	targets := []Target{
		{Population: 80},
		{Population: 80, ExitFactor: 50}, // pushes Exit prevalence past 1
	}
	result, err := Run(pipelineInputs(), targets, PipelineConfig{Seed: 42})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Targets[0].Err != nil {
		t.Errorf("healthy target failed: %v", result.Targets[0].Err)
	}
	var terr *InvalidTargetError
	if !errors.As(result.Targets[1].Err, &terr) {
		t.Errorf("infeasible target error is %T (%v), want *InvalidTargetError",
			result.Targets[1].Err, result.Targets[1].Err)
	}
}

// TestRun_NoInputs verifies the empty history is rejected as
// insufficient data.
func TestRun_NoInputs(t *testing.T) {
	_, err := Run(nil, []Target{{Population: 80}}, PipelineConfig{})
	var ierr *fit.InsufficientDataError
	if !errors.As(err, &ierr) {
		t.Fatalf("error is %T (%v), want *InsufficientDataError", err, err)
	}
	if ierr.Distinct != 0 {
		t.Errorf("Distinct = %d, want 0", ierr.Distinct)
	}
}

// TestRun_SingleConsensus verifies a one-point history is rejected.
func TestRun_SingleConsensus(t *testing.T) {
	_, err := Run(pipelineInputs()[:1], []Target{{Population: 80}}, PipelineConfig{})
	var ierr *fit.InsufficientDataError
	if !errors.As(err, &ierr) {
		t.Fatalf("error is %T (%v), want *InsufficientDataError", err, err)
	}
	if ierr.Distinct != 1 {
		t.Errorf("Distinct = %d, want 1", ierr.Distinct)
	}
}
