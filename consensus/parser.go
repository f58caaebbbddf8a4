package consensus

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Parse converts consensus wire text into a Document. It is a pure
// transformation; all failures are reported as *FormatError.
//
// The grammar is the network-status-consensus-3 format: header lines,
// then one block per router (r/a/s/v/pr/w/p plus the optional fam/as
// annotation lines), then the directory footer with bandwidth-weights.
// Lines with keywords we do not model (dir-source, signatures, ...) are
// skipped; unknown flag tokens and malformed values are hard errors.
func Parse(text string) (*Document, error) {
	p := &parser{
		doc: &Document{
			ConsensusMethod: 31,
			Params:          make(map[string]int64),
			Weights:         make(map[string]int64),
		},
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		p.line++
		if err := p.consume(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type parser struct {
	doc  *Document
	line int

	current *RouterEntry // router block under construction
	sawW    bool         // current router has a w line
	sawS    bool         // current router has an s line

	sawVersion    bool
	sawVoteStatus bool
	sawValidAfter bool
	sawWeights    bool
}

func (p *parser) consume(raw string) error {
	line := strings.TrimRight(raw, "\r")
	if line == "" || strings.HasPrefix(line, "@") {
		return nil
	}
	keyword, args, _ := strings.Cut(line, " ")

	switch keyword {
	case "network-status-version":
		if args != "3" {
			return formatErrorf(p.line, "unsupported network-status-version %q", args)
		}
		p.sawVersion = true
	case "vote-status":
		if args != "consensus" {
			return formatErrorf(p.line, "vote-status is %q, want consensus", args)
		}
		p.sawVoteStatus = true
	case "consensus-method":
		method, err := strconv.Atoi(args)
		if err != nil {
			return formatErrorf(p.line, "invalid consensus-method %q", args)
		}
		p.doc.ConsensusMethod = method
	case "valid-after":
		t, err := time.Parse(timeLayout, args)
		if err != nil {
			return formatErrorf(p.line, "invalid valid-after %q", args)
		}
		p.doc.ValidAfter = t
		p.sawValidAfter = true
	case "fresh-until":
		t, err := time.Parse(timeLayout, args)
		if err != nil {
			return formatErrorf(p.line, "invalid fresh-until %q", args)
		}
		p.doc.FreshUntil = t
	case "valid-until":
		t, err := time.Parse(timeLayout, args)
		if err != nil {
			return formatErrorf(p.line, "invalid valid-until %q", args)
		}
		p.doc.ValidUntil = t
	case "known-flags":
		for _, tok := range strings.Fields(args) {
			if _, err := ParseFlag(tok); err != nil {
				return formatErrorf(p.line, "known-flags: %v", err)
			}
		}
	case "params":
		for _, kv := range strings.Fields(args) {
			name, val, ok := strings.Cut(kv, "=")
			if !ok {
				return formatErrorf(p.line, "malformed param %q", kv)
			}
			v, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return formatErrorf(p.line, "malformed param value %q", kv)
			}
			if err := CheckParam(name, v); err != nil {
				return formatErrorf(p.line, "%v", err)
			}
			p.doc.Params[name] = v
		}
	case "r":
		if err := p.finishRouter(); err != nil {
			return err
		}
		entry, err := p.parseRouterLine(args)
		if err != nil {
			return err
		}
		p.current = entry
	case "s":
		if p.current == nil {
			return formatErrorf(p.line, "s line outside a router block")
		}
		if p.sawS {
			return formatErrorf(p.line, "router %s: duplicate s line", p.current.Nickname)
		}
		for _, tok := range strings.Fields(args) {
			f, err := ParseFlag(tok)
			if err != nil {
				return formatErrorf(p.line, "router %s: %v", p.current.Nickname, err)
			}
			p.current.Flags = append(p.current.Flags, f)
		}
		p.sawS = true
	case "v":
		if p.current == nil {
			return formatErrorf(p.line, "v line outside a router block")
		}
		p.current.Version = args
	case "pr":
		if p.current == nil {
			return formatErrorf(p.line, "pr line outside a router block")
		}
		p.current.Protocols = args
	case "w":
		if p.current == nil {
			return formatErrorf(p.line, "w line outside a router block")
		}
		if !strings.HasPrefix(args, "Bandwidth=") {
			return formatErrorf(p.line, "router %s: w line does not start with Bandwidth=", p.current.Nickname)
		}
		for _, kv := range strings.Fields(args) {
			name, val, ok := strings.Cut(kv, "=")
			if !ok {
				return formatErrorf(p.line, "router %s: malformed w entry %q", p.current.Nickname, kv)
			}
			if name != "Bandwidth" {
				continue // Measured, Unmeasured, ... are not modeled
			}
			bw, err := strconv.ParseInt(val, 10, 64)
			if err != nil || bw < 0 {
				return formatErrorf(p.line, "router %s: invalid bandwidth %q", p.current.Nickname, val)
			}
			p.current.Bandwidth = bw
		}
		p.sawW = true
	case "p":
		if p.current == nil {
			return formatErrorf(p.line, "p line outside a router block")
		}
		p.current.ExitPolicy = args
	case "fam":
		if p.current == nil {
			return formatErrorf(p.line, "fam line outside a router block")
		}
		p.current.Family = args
	case "as":
		if p.current == nil {
			return formatErrorf(p.line, "as line outside a router block")
		}
		asn, err := strconv.ParseUint(args, 10, 32)
		if err != nil {
			return formatErrorf(p.line, "router %s: invalid AS number %q", p.current.Nickname, args)
		}
		p.current.ASNumber = uint32(asn)
	case "directory-footer":
		if err := p.finishRouter(); err != nil {
			return err
		}
	case "bandwidth-weights":
		if err := p.finishRouter(); err != nil {
			return err
		}
		if err := p.parseWeights(args); err != nil {
			return err
		}
		p.sawWeights = true
	default:
		// dir-source, shared-rand-*, signatures, a lines, ...
	}
	return nil
}

// parseRouterLine handles the arguments of an r line:
// nickname identity digest date time address orport dirport
func (p *parser) parseRouterLine(args string) (*RouterEntry, error) {
	fields := strings.Fields(args)
	if len(fields) < 8 {
		return nil, formatErrorf(p.line, "r line has %d fields, want 8", len(fields))
	}
	entry := &RouterEntry{
		Nickname: fields[0],
		Address:  fields[5],
	}
	var err error
	if entry.Fingerprint, err = FingerprintFromBase64(fields[1]); err != nil {
		return nil, &FormatError{Line: p.line, Msg: "invalid identity on r line", Err: err}
	}
	if entry.Digest, err = FingerprintFromBase64(fields[2]); err != nil {
		return nil, &FormatError{Line: p.line, Msg: "invalid digest on r line", Err: err}
	}
	if entry.Published, err = time.Parse(timeLayout, fields[3]+" "+fields[4]); err != nil {
		return nil, formatErrorf(p.line, "invalid published time %q", fields[3]+" "+fields[4])
	}
	orPort, err := strconv.ParseUint(fields[6], 10, 16)
	if err != nil {
		return nil, formatErrorf(p.line, "invalid ORPort %q", fields[6])
	}
	dirPort, err := strconv.ParseUint(fields[7], 10, 16)
	if err != nil {
		return nil, formatErrorf(p.line, "invalid DirPort %q", fields[7])
	}
	entry.ORPort = uint16(orPort)
	entry.DirPort = uint16(dirPort)
	return entry, nil
}

func (p *parser) parseWeights(args string) error {
	known := make(map[string]bool, len(BandwidthWeightKeys))
	for _, k := range BandwidthWeightKeys {
		known[k] = true
	}
	for _, kv := range strings.Fields(args) {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return formatErrorf(p.line, "malformed bandwidth-weights entry %q", kv)
		}
		if !known[name] {
			return formatErrorf(p.line, "unknown bandwidth-weight key %q", name)
		}
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return formatErrorf(p.line, "malformed bandwidth-weight value %q", kv)
		}
		p.doc.Weights[name] = v
	}
	var missing []string
	for _, k := range BandwidthWeightKeys {
		if _, ok := p.doc.Weights[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return formatErrorf(p.line, "bandwidth-weights missing keys: %s", strings.Join(missing, " "))
	}
	return nil
}

// finishRouter completes the router block under construction, if any.
func (p *parser) finishRouter() error {
	if p.current == nil {
		return nil
	}
	if !p.sawS {
		return formatErrorf(p.line, "router %s: missing s line", p.current.Nickname)
	}
	if !p.sawW {
		return formatErrorf(p.line, "router %s: missing w line", p.current.Nickname)
	}
	p.doc.Routers = append(p.doc.Routers, p.current)
	p.current, p.sawS, p.sawW = nil, false, false
	return nil
}

func (p *parser) finish() error {
	if err := p.finishRouter(); err != nil {
		return err
	}
	var missing []string
	if !p.sawVersion {
		missing = append(missing, "network-status-version")
	}
	if !p.sawVoteStatus {
		missing = append(missing, "vote-status")
	}
	if !p.sawValidAfter {
		missing = append(missing, "valid-after")
	}
	if !p.sawWeights {
		missing = append(missing, "bandwidth-weights")
	}
	if len(missing) > 0 {
		return formatErrorf(0, "missing required lines: %s", strings.Join(missing, ", "))
	}
	if p.doc.FreshUntil.IsZero() {
		p.doc.FreshUntil = p.doc.ValidAfter.Add(1 * time.Hour)
	}
	if p.doc.ValidUntil.IsZero() {
		p.doc.ValidUntil = p.doc.ValidAfter.Add(3 * time.Hour)
	}
	return nil
}
