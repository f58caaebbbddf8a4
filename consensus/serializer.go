package consensus

import (
	"fmt"
	"strings"
)

// Serialize renders the document in the network-status-consensus-3 wire
// format. It is total over well-formed documents, and Parse(Serialize(d))
// reproduces d: router order, flags, params, and weights included.
func (d *Document) Serialize() string {
	var b strings.Builder

	fmt.Fprintf(&b, "@type network-status-consensus-3 1.0\n")
	fmt.Fprintf(&b, "network-status-version 3\n")
	fmt.Fprintf(&b, "vote-status consensus\n")
	fmt.Fprintf(&b, "consensus-method %d\n", d.ConsensusMethod)
	fmt.Fprintf(&b, "valid-after %s\n", d.ValidAfter.Format(timeLayout))
	fmt.Fprintf(&b, "fresh-until %s\n", d.FreshUntil.Format(timeLayout))
	fmt.Fprintf(&b, "valid-until %s\n", d.ValidUntil.Format(timeLayout))
	fmt.Fprintf(&b, "known-flags %s\n", KnownFlagsString())
	if len(d.Params) > 0 {
		pairs := make([]string, 0, len(d.Params))
		for _, k := range sortedKeys(d.Params) {
			pairs = append(pairs, fmt.Sprintf("%s=%d", k, d.Params[k]))
		}
		fmt.Fprintf(&b, "params %s\n", strings.Join(pairs, " "))
	}

	for _, r := range d.Routers {
		fmt.Fprintf(&b, "r %s %s %s %s %s %d %d\n",
			r.Nickname,
			r.Fingerprint.Base64(),
			r.Digest.Base64(),
			r.Published.Format(timeLayout),
			r.Address,
			r.ORPort,
			r.DirPort,
		)
		flags := make([]string, len(r.Flags))
		for i, f := range r.Flags {
			flags[i] = string(f)
		}
		fmt.Fprintf(&b, "s%s\n", joinWithLeadingSpace(flags))
		if r.Version != "" {
			fmt.Fprintf(&b, "v %s\n", r.Version)
		}
		if r.Protocols != "" {
			fmt.Fprintf(&b, "pr %s\n", r.Protocols)
		}
		fmt.Fprintf(&b, "w Bandwidth=%d\n", r.Bandwidth)
		if r.ExitPolicy != "" {
			fmt.Fprintf(&b, "p %s\n", r.ExitPolicy)
		}
		if r.Family != "" {
			fmt.Fprintf(&b, "fam %s\n", r.Family)
		}
		if r.ASNumber != 0 {
			fmt.Fprintf(&b, "as %d\n", r.ASNumber)
		}
	}

	fmt.Fprintf(&b, "directory-footer\n")
	pairs := make([]string, 0, len(d.Weights))
	for _, k := range sortedKeys(d.Weights) {
		pairs = append(pairs, fmt.Sprintf("%s=%d", k, d.Weights[k]))
	}
	fmt.Fprintf(&b, "bandwidth-weights %s\n", strings.Join(pairs, " "))

	return b.String()
}

// joinWithLeadingSpace renders " a b c", or "" for an empty slice, so
// flagless routers serialize as a bare "s" line.
func joinWithLeadingSpace(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
