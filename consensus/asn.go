package consensus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ASNDb maps IPv4 addresses to autonomous-system numbers via
// longest-prefix match over CIDR ranges loaded from a CSV file with
// columns: network (CIDR), AS number, AS name.
type ASNDb struct {
	// one prefix table per mask length, consulted longest-first
	tables [33]map[uint32]uint32
	names  map[uint32]string
}

// LoadASNDb reads an AS database CSV file.
func LoadASNDb(path string) (*ASNDb, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ASN database: %w", err)
	}
	defer f.Close()
	return ReadASNDb(f)
}

// ReadASNDb parses AS database CSV records from a reader.
func ReadASNDb(r io.Reader) (*ASNDb, error) {
	db := &ASNDb{names: make(map[uint32]string)}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ASN database: %w", err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("ASN database row has %d columns, want at least 2", len(record))
		}
		prefix, maskLen, err := parseCIDR(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, err
		}
		asn, err := strconv.ParseUint(strings.TrimSpace(record[1]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid AS number %q", record[1])
		}
		if db.tables[maskLen] == nil {
			db.tables[maskLen] = make(map[uint32]uint32)
		}
		db.tables[maskLen][prefix] = uint32(asn)
		if len(record) >= 3 {
			db.names[uint32(asn)] = strings.TrimSpace(record[2])
		}
	}
	return db, nil
}

// Lookup returns the AS number of an IPv4 address in dotted-quad form,
// or false when no range covers it.
func (db *ASNDb) Lookup(addr string) (uint32, bool) {
	ip, err := parseIPv4(addr)
	if err != nil {
		return 0, false
	}
	for maskLen := 32; maskLen >= 1; maskLen-- {
		table := db.tables[maskLen]
		if table == nil {
			continue
		}
		if asn, ok := table[ip&maskOf(maskLen)]; ok {
			return asn, true
		}
	}
	return 0, false
}

// Name returns the registered name of an AS, if known.
func (db *ASNDb) Name(asn uint32) string {
	return db.names[asn]
}

func parseCIDR(s string) (prefix uint32, maskLen int, err error) {
	ipPart, lenPart, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("invalid CIDR %q", s)
	}
	ip, err := parseIPv4(ipPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	maskLen, err = strconv.Atoi(lenPart)
	if err != nil || maskLen < 1 || maskLen > 32 {
		return 0, 0, fmt.Errorf("invalid CIDR mask length in %q", s)
	}
	return ip & maskOf(maskLen), maskLen, nil
}

func parseIPv4(s string) (uint32, error) {
	var ip uint32
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	for _, part := range parts {
		octet, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid IPv4 address %q", s)
		}
		ip = ip<<8 | uint32(octet)
	}
	return ip, nil
}

func maskOf(maskLen int) uint32 {
	return ^uint32(0) << (32 - maskLen)
}
