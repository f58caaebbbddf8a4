// Package consensus provides the in-memory model of a Tor network
// consensus document together with its text wire format.
//
// # Reading Guide
//
// Start with these files:
//   - document.go: Document and RouterEntry value types, flag vocabulary,
//     bandwidth-weight key set, consensus-parameter ranges
//   - parser.go: wire text -> Document
//   - serializer.go: Document -> wire text (inverse of the parser)
//
// Supporting pieces:
//   - bwweights.go: dir-spec bandwidth-weight derivation and verification
//   - asn.go: IP range -> AS number lookup database
package consensus

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Flag is a relay role/capability label from the consensus vocabulary.
type Flag string

// The known relay flags, in the order they appear on a known-flags line.
const (
	FlagAuthority     Flag = "Authority"
	FlagBadExit       Flag = "BadExit"
	FlagExit          Flag = "Exit"
	FlagFast          Flag = "Fast"
	FlagGuard         Flag = "Guard"
	FlagHSDir         Flag = "HSDir"
	FlagNoEdConsensus Flag = "NoEdConsensus"
	FlagRunning       Flag = "Running"
	FlagStable        Flag = "Stable"
	FlagStaleDesc     Flag = "StaleDesc"
	FlagSybil         Flag = "Sybil"
	FlagV2Dir         Flag = "V2Dir"
	FlagValid         Flag = "Valid"
)

// KnownFlags lists the full flag vocabulary in canonical order.
var KnownFlags = []Flag{
	FlagAuthority, FlagBadExit, FlagExit, FlagFast, FlagGuard, FlagHSDir,
	FlagNoEdConsensus, FlagRunning, FlagStable, FlagStaleDesc, FlagSybil,
	FlagV2Dir, FlagValid,
}

var knownFlagSet = func() map[Flag]bool {
	m := make(map[Flag]bool, len(KnownFlags))
	for _, f := range KnownFlags {
		m[f] = true
	}
	return m
}()

// ParseFlag validates a flag token against the vocabulary.
func ParseFlag(s string) (Flag, error) {
	f := Flag(s)
	if !knownFlagSet[f] {
		return "", fmt.Errorf("unknown flag %q", s)
	}
	return f, nil
}

// KnownFlagsString renders the vocabulary for the known-flags header line.
func KnownFlagsString() string {
	parts := make([]string, len(KnownFlags))
	for i, f := range KnownFlags {
		parts[i] = string(f)
	}
	return strings.Join(parts, " ")
}

// BandwidthWeightKeys is the fixed, sorted set of keys a consensus
// bandwidth-weights line must carry.
var BandwidthWeightKeys = []string{
	"Wbd", "Wbe", "Wbg", "Wbm",
	"Wdb",
	"Web", "Wed", "Wee", "Weg", "Wem",
	"Wgb", "Wgd", "Wgg", "Wgm",
	"Wmb", "Wmd", "Wme", "Wmg", "Wmm",
}

// ParamRange bounds a consensus parameter value.
type ParamRange struct {
	Min int64
	Max int64
}

// paramRanges holds the dir-spec bounds for the parameters we recognize.
// Parameters not listed here fall back to the generic int32 range that
// Tor applies to unrecognized params.
var paramRanges = map[string]ParamRange{
	"bwweightscale":               {1, math.MaxInt32},
	"circwindow":                  {100, 1000},
	"CircuitPriorityHalflifeMsec": {-1, math.MaxInt32},
	"refuseunknownexits":          {0, 1},
	"UseOptimisticData":           {0, 1},
	"usecreatefast":               {0, 1},
	"cbtquantile":                 {10, 99},
	"cbtnummodes":                 {1, 20},
	"KISTSchedRunInterval":        {0, 100},
	"sendme_emit_min_version":     {0, 1},
	"sendme_accept_min_version":   {0, 1},
}

// defaultParamRange is the generic range for unrecognized parameters.
var defaultParamRange = ParamRange{math.MinInt32, math.MaxInt32}

// RangeForParam returns the accepted value range of a consensus parameter.
func RangeForParam(name string) ParamRange {
	if r, ok := paramRanges[name]; ok {
		return r
	}
	return defaultParamRange
}

// CheckParam validates a single parameter value against its range.
func CheckParam(name string, value int64) error {
	r := RangeForParam(name)
	if value < r.Min || value > r.Max {
		return fmt.Errorf("param %s=%d outside range [%d, %d]", name, value, r.Min, r.Max)
	}
	return nil
}

// Fingerprint is a relay identity or descriptor digest (20 raw bytes).
type Fingerprint [20]byte

// FingerprintFromBase64 decodes the unpadded base64 form used on r lines.
func FingerprintFromBase64(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid base64 fingerprint %q: %w", s, err)
	}
	if len(raw) != len(fp) {
		return fp, fmt.Errorf("fingerprint %q decodes to %d bytes, want %d", s, len(raw), len(fp))
	}
	copy(fp[:], raw)
	return fp, nil
}

// FingerprintFromHex decodes the 40-character hex form.
func FingerprintFromHex(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(fp) {
		return fp, fmt.Errorf("invalid hex fingerprint %q", s)
	}
	copy(fp[:], raw)
	return fp, nil
}

// Base64 renders the unpadded base64 form used on r lines.
func (fp Fingerprint) Base64() string {
	return base64.RawStdEncoding.EncodeToString(fp[:])
}

// Hex renders the uppercase hex form.
func (fp Fingerprint) Hex() string {
	return strings.ToUpper(hex.EncodeToString(fp[:]))
}

func (fp Fingerprint) String() string { return fp.Hex() }

// RouterEntry is one relay listed in a consensus.
//
// Family and ASNumber do not appear in genuine consensuses; they are
// carried on optional annotation lines produced by the enrichment step
// (see parser.go) and are zero-valued when absent.
type RouterEntry struct {
	Nickname    string
	Fingerprint Fingerprint
	Digest      Fingerprint
	Published   time.Time
	Address     string // dotted-quad IPv4
	ORPort      uint16
	DirPort     uint16 // 0 = none
	Flags       []Flag
	Version     string // full "v" line argument, may be empty
	Protocols   string // full "pr" line argument, may be empty
	ExitPolicy  string // full "p" line argument, may be empty
	Bandwidth   int64  // consensus weight from the "w" line
	Family      string // family group key, "" = no declared family
	ASNumber    uint32 // autonomous system, 0 = unknown
}

// HasFlag reports whether the entry carries the given flag.
func (r *RouterEntry) HasFlag(f Flag) bool {
	for _, have := range r.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// Document is a parsed or synthesized consensus.
// Routers preserve consensus listing order; Params and Weights are keyed
// maps serialized in sorted key order.
type Document struct {
	ValidAfter      time.Time
	FreshUntil      time.Time
	ValidUntil      time.Time
	ConsensusMethod int
	Routers         []*RouterEntry
	Params          map[string]int64
	Weights         map[string]int64
}

// NewDocument returns an empty document with the given valid-after time
// and the standard one-hour/three-hour freshness windows.
func NewDocument(validAfter time.Time) *Document {
	return &Document{
		ValidAfter:      validAfter,
		FreshUntil:      validAfter.Add(1 * time.Hour),
		ValidUntil:      validAfter.Add(3 * time.Hour),
		ConsensusMethod: 31,
		Params:          make(map[string]int64),
		Weights:         make(map[string]int64),
	}
}

// TotalBandwidth sums the consensus weights of all routers.
func (d *Document) TotalBandwidth() int64 {
	var total int64
	for _, r := range d.Routers {
		total += r.Bandwidth
	}
	return total
}

// Validate checks the document-model invariants: flag tokens from the
// vocabulary, non-negative bandwidths, unique fingerprints, the complete
// bandwidth-weight key set, and in-range parameter values.
func (d *Document) Validate() error {
	seen := make(map[Fingerprint]bool, len(d.Routers))
	for i, r := range d.Routers {
		if seen[r.Fingerprint] {
			return fmt.Errorf("router %d: duplicate fingerprint %s", i, r.Fingerprint)
		}
		seen[r.Fingerprint] = true
		if r.Bandwidth < 0 {
			return fmt.Errorf("router %s: negative bandwidth %d", r.Nickname, r.Bandwidth)
		}
		for _, f := range r.Flags {
			if !knownFlagSet[f] {
				return fmt.Errorf("router %s: unknown flag %q", r.Nickname, f)
			}
		}
	}
	if len(d.Weights) != len(BandwidthWeightKeys) {
		return fmt.Errorf("bandwidth-weights has %d keys, want %d", len(d.Weights), len(BandwidthWeightKeys))
	}
	for _, k := range BandwidthWeightKeys {
		if _, ok := d.Weights[k]; !ok {
			return fmt.Errorf("bandwidth-weights missing key %s", k)
		}
	}
	for name, v := range d.Params {
		if err := CheckParam(name, v); err != nil {
			return err
		}
	}
	return nil
}

// sortedKeys returns map keys in sorted order, for stable serialization.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
