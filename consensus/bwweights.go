package consensus

import "fmt"

// Bandwidth-weight derivation per dir-spec §3.8.4, following the tor
// implementation's case analysis. Relays are grouped into four classes:
// E (exit only), G (guard only), D (both), M (neither), and the weights
// balance expected bandwidth across path positions.

const defaultWeightScale = 10000

// classTotals sums consensus weight per relay class. BadExit disables
// exit-class membership, matching tor's accounting.
func classTotals(d *Document) (e, g, dd, m int64) {
	// start at 1 to avoid divisions by zero in degenerate consensuses
	e, g, dd, m = 1, 1, 1, 1
	for _, r := range d.Routers {
		isExit := r.HasFlag(FlagExit) && !r.HasFlag(FlagBadExit)
		switch {
		case isExit && r.HasFlag(FlagGuard):
			dd += r.Bandwidth
		case isExit:
			e += r.Bandwidth
		case r.HasFlag(FlagGuard):
			g += r.Bandwidth
		default:
			m += r.Bandwidth
		}
	}
	return
}

// RecomputeWeights rederives the full bandwidth-weights set from the
// document's router population and stores it in d.Weights.
func (d *Document) RecomputeWeights() {
	scale := int64(defaultWeightScale)
	if v, ok := d.Params["bwweightscale"]; ok {
		scale = v
	}

	E, G, D, M := classTotals(d)
	T := E + G + D + M

	var Wgd, Wgg, Wmg, Wme, Wmd, Wee, Wed int64

	switch {
	case 3*E >= T && 3*G >= T:
		// Case 1: neither guards nor exits are scarce
		Wmd = scale / 3
		Wed = scale / 3
		Wgd = scale / 3
		Wee = (scale * (E + G + M)) / (3 * E)
		Wme = scale - Wee
		Wmg = (scale * (2*G - E - M)) / (3 * G)
		Wgg = scale - Wmg
	case 3*E < T && 3*G < T:
		// Case 2: both guards and exits are scarce
		R := minInt64(E, G)
		S := maxInt64(E, G)
		if R+D < S {
			// subcase a
			Wgg = scale
			Wee = scale
			Wmd, Wme, Wmg = 0, 0, 0
			if E < G {
				Wed = scale
				Wgd = 0
			} else {
				Wed = 0
				Wgd = scale
			}
		} else {
			// subcase b: R+D >= S
			Wee = (scale * (E - G + M)) / E
			Wed = (scale * (D - 2*E + 4*G - 2*M)) / (3 * D)
			Wme = (scale * (G - M)) / E
			Wmg = 0
			Wgg = scale
			Wgd = (scale - Wed) / 2
			Wmd = (scale - Wed) / 2

			if weightsError(Wgg, Wgd, Wmg, Wme, Wmd, Wee, Wed, scale, G, M, E, D, T, 10, true) != bwwOK {
				Wee = scale
				Wgg = scale
				Wed = (scale * (D - 2*E + G + M)) / (3 * D)
				Wmd = (scale * (D - 2*M + G + E)) / (3 * D)
				Wmg = 0
				Wme = 0
				if Wmd < 0 {
					// too much bandwidth at the middle position
					Wmd = 0
				}
				Wgd = scale - Wed - Wmd
			}
		}
	default:
		// Case 3: exactly one of guards/exits is scarce
		S := minInt64(E, G)
		if 3*(S+D) < T {
			// subcase a
			if G < E {
				Wgd = scale
				Wgg = scale
				Wmg, Wed, Wmd = 0, 0, 0
				if E < M {
					Wme = 0
				} else {
					Wme = (scale * (E - M)) / (2 * E)
				}
				Wee = scale - Wme
			} else {
				Wed = scale
				Wee = scale
				Wme, Wgd, Wmd = 0, 0, 0
				if G < M {
					Wmg = 0
				} else {
					Wmg = (scale * (G - M)) / (2 * G)
				}
				Wgg = scale - Wmg
			}
		} else {
			// subcase b: S+D >= T/3
			if G < E {
				Wgg = scale
				Wgd = (scale * (D - 2*G + E + M)) / (3 * D)
				Wmg = 0
				Wee = (scale * (E + M)) / (2 * E)
				Wme = scale - Wee
				Wed = (scale - Wgd) / 2
				Wmd = (scale - Wgd) / 2
			} else {
				Wee = scale
				Wed = (scale * (D - 2*E + G + M)) / (3 * D)
				Wme = 0
				Wgg = (scale * (G + M)) / (2 * G)
				Wmg = scale - Wgg
				Wgd = (scale - Wed) / 2
				Wmd = (scale - Wed) / 2
			}
		}
	}

	d.Weights = map[string]int64{
		"Wbd": Wmd, "Wbe": Wme, "Wbg": Wmg, "Wbm": scale,
		"Wdb": scale,
		"Web": scale, "Wed": Wed, "Wee": Wee, "Weg": Wed, "Wem": Wee,
		"Wgb": scale, "Wgd": Wgd, "Wgg": Wgg, "Wgm": Wgg,
		"Wmb": scale, "Wmd": Wmd, "Wme": Wme, "Wmg": Wmg, "Wmm": scale,
	}
}

// VerifyWeights rederives the bandwidth-weights and compares them with
// the ones the document carries.
func (d *Document) VerifyWeights() error {
	old := d.Weights
	defer func() { d.Weights = old }()

	d.RecomputeWeights()
	for _, k := range BandwidthWeightKeys {
		if d.Weights[k] != old[k] {
			return fmt.Errorf("bandwidth-weight mismatch: %s is %d, recomputed %d", k, old[k], d.Weights[k])
		}
	}
	return nil
}

type bwwError int

const (
	bwwOK bwwError = iota
	bwwSumD
	bwwSumG
	bwwSumE
	bwwRange
	bwwBalanceEG
	bwwBalanceMid
)

// weightsError checks the candidate weights against the dir-spec
// constraint equations, within the given margin.
func weightsError(Wgg, Wgd, Wmg, Wme, Wmd, Wee, Wed, scale, G, M, E, D, T, margin int64, doBalance bool) bwwError {
	within := func(a, b, m int64) bool {
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		return diff <= m
	}
	if !within(Wed+Wmd+Wgd, scale, margin) {
		return bwwSumD
	}
	if !within(Wmg+Wgg, scale, margin) {
		return bwwSumG
	}
	if !within(Wme+Wee, scale, margin) {
		return bwwSumE
	}
	for _, w := range []int64{Wgg, Wgd, Wmg, Wme, Wmd, Wed, Wee} {
		if w < 0 || w > scale {
			return bwwRange
		}
	}
	if doBalance {
		if !within(Wgg*G+Wgd*D, Wee*E+Wed*D, (margin*T)/3) {
			return bwwBalanceEG
		}
		if !within(Wgg*G+Wgd*D, M*scale+Wmd*D+Wme*E+Wmg*G, (margin*T)/3) {
			return bwwBalanceMid
		}
	}
	return bwwOK
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
