// Package vmdkdesc parses the VMDK descriptor: the small text sidecar (or
// text header, for sparse images) that names a disk's extents, geometry and
// adapter type. This module's only supported createType is monolithicFlat,
// matching the converter's flat-extent scope (spec.md §1 Non-goals).
package vmdkdesc

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ExtentType is the access mode of one extent line. Only ExtentFlat is
// supported for reading; the others are recognized so a clear error can be
// raised instead of a silent misread.
type ExtentType int

const (
	ExtentFlat ExtentType = iota
	ExtentSparse
	ExtentZero
	ExtentVMFS
	ExtentVMFSSparse
	ExtentVMFSRDM
	ExtentVMFSRaw
)

func parseExtentType(s string) (ExtentType, error) {
	switch strings.ToUpper(s) {
	case "FLAT":
		return ExtentFlat, nil
	case "SPARSE":
		return ExtentSparse, nil
	case "ZERO":
		return ExtentZero, nil
	case "VMFS":
		return ExtentVMFS, nil
	case "VMFSSPARSE":
		return ExtentVMFSSparse, nil
	case "VMFSRDM":
		return ExtentVMFSRDM, nil
	case "VMFSRAW":
		return ExtentVMFSRaw, nil
	default:
		return 0, errors.Errorf("unknown extent type %q", s)
	}
}

// Extent is one line of the descriptor's "Extent description" section, e.g.
//
//	RW 83886080 FLAT "disk-flat.vmdk" 0
type Extent struct {
	Access     string // "RW", "RDONLY", "NOACCESS"
	SizeSectors int64
	Type       ExtentType
	FileName   string
	Offset     int64
}

// Descriptor is the parsed content of a .vmdk descriptor.
type Descriptor struct {
	CreateType string
	Extents    []Extent

	Cylinders   int
	Heads       int
	Sectors     int
	AdapterType string
}

// Parse reads a VMDK descriptor from r. It returns an error unless
// CreateType is "monolithicFlat" — every other createType (sparse,
// twoGbMaxExtentFlat, streamOptimized, vmfs, ...) requires a different
// extent-reading strategy this converter does not implement.
func Parse(r io.Reader) (*Descriptor, error) {
	d := &Descriptor{}
	ddb := make(map[string]string)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if ext, ok, err := tryParseExtentLine(line); err != nil {
			return nil, errors.Wrapf(err, "descriptor line %d", lineNo)
		} else if ok {
			d.Extents = append(d.Extents, ext)
			continue
		}

		key, value, ok := splitDescriptorKV(line)
		if !ok {
			// Not every descriptor line is key/value (e.g. version markers
			// are bare tokens); ignore anything we don't recognize.
			continue
		}
		switch {
		case strings.EqualFold(key, "createType"):
			d.CreateType = trimQuotes(value)
		case strings.HasPrefix(key, "ddb."):
			ddb[strings.ToLower(key)] = trimQuotes(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read vmdk descriptor")
	}

	if d.CreateType == "" {
		return nil, errors.New("vmdk descriptor missing createType")
	}
	if !strings.EqualFold(d.CreateType, "monolithicFlat") {
		return nil, errors.Errorf("unsupported vmdk createType %q: only monolithicFlat is supported", d.CreateType)
	}

	if v, ok := ddb["ddb.geometry.cylinders"]; ok {
		d.Cylinders, _ = strconv.Atoi(v)
	}
	if v, ok := ddb["ddb.geometry.heads"]; ok {
		d.Heads, _ = strconv.Atoi(v)
	}
	if v, ok := ddb["ddb.geometry.sectors"]; ok {
		d.Sectors, _ = strconv.Atoi(v)
	}
	d.AdapterType = ddb["ddb.adaptertype"]

	return d, nil
}

// tryParseExtentLine recognizes lines of the form:
//
//	<access> <size> <type> ["<filename>" [<offset>]]
//
// where access is RW/RDONLY/NOACCESS and size is a base-10 integer. Any
// line not matching this shape is reported as not-an-extent (ok=false) so
// the caller falls through to key/value handling. The filename may be
// omitted only for ZERO extents; for every other type a missing filename
// is an error.
func tryParseExtentLine(line string) (Extent, bool, error) {
	fields := splitRespectingQuotes(line)
	if len(fields) < 3 {
		return Extent{}, false, nil
	}
	access := fields[0]
	if access != "RW" && access != "RDONLY" && access != "NOACCESS" {
		return Extent{}, false, nil
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Extent{}, false, nil
	}
	extType, err := parseExtentType(fields[2])
	if err != nil {
		return Extent{}, false, nil
	}

	ext := Extent{Access: access, SizeSectors: size, Type: extType}
	if extType == ExtentZero {
		return ext, true, nil
	}
	if len(fields) < 4 {
		return Extent{}, false, errors.Errorf("extent line missing filename: %q", line)
	}
	ext.FileName = trimQuotes(fields[3])
	if len(fields) >= 5 {
		offset, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return Extent{}, false, errors.Errorf("invalid extent offset %q", fields[4])
		}
		ext.Offset = offset
	}
	return ext, true, nil
}

func splitDescriptorKV(line string) (key, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	value = strings.TrimSpace(line[eq+1:])
	return key, value, true
}

func trimQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// splitRespectingQuotes splits on whitespace but keeps a double-quoted
// field (which may itself contain no spaces in VMDK descriptors, but is
// handled generally) intact as one token.
func splitRespectingQuotes(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' || r == '\t':
			if inQuotes {
				cur.WriteRune(r)
			} else if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}
