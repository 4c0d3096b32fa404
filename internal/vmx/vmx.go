// Package vmx parses VMware Workstation .vmx configuration files: the
// key/value text format naming the VM's display name, guest OS, CPU and
// memory allocation, and attached disks. This is the external-collaborator
// contract named (but not deeply specified) by spec.md §1/§4.6 — the parser
// itself is unremarkable text processing, built here because the
// orchestrator depends on its output.
package vmx

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Disk describes one virtual disk attached to a controller/unit pair.
type Disk struct {
	Controller string // e.g. "scsi0"
	Unit       int
	VMDKPath   string // value of "<controller>:<unit>.fileName"
}

// Config is the parsed subset of a .vmx file the exporter needs.
type Config struct {
	DisplayName string
	GuestOS     string
	NumCPUs     int
	MemoryMB    int
	Networks    []string
	Disks       []Disk
}

// Parse reads a .vmx file's key/value lines from r.
//
// Accepted syntax: "#"-prefixed comments, blank lines, "key = value" and
// "key=value", and double-quoted or bare values. Disk lines are recognized
// by the pattern "<controller><n>:<unit>.fileName" (e.g. "scsi0:0.fileName")
// and their sibling ".present"/".deviceType" keys are ignored — only the
// file name is needed to locate the VMDK descriptor.
func Parse(r io.Reader) (*Config, error) {
	raw := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			return nil, errors.Errorf("vmx parse error: line %d: malformed key/value line %q", lineNo, line)
		}
		raw[strings.ToLower(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read vmx file")
	}

	cfg := &Config{
		DisplayName: raw["displayname"],
		GuestOS:     raw["guestos"],
	}
	if v, ok := raw["numvcpus"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "vmx parse error: invalid numvcpus %q", v)
		}
		cfg.NumCPUs = n
	}
	if v, ok := raw["memsize"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "vmx parse error: invalid memsize %q", v)
		}
		cfg.MemoryMB = n
	}

	cfg.Disks = extractDisks(raw)
	cfg.Networks = extractNetworks(raw)

	return cfg, nil
}

func splitKeyValue(line string) (key, value string, ok bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:eq])
	value = strings.TrimSpace(line[eq+1:])
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		value = value[1 : len(value)-1]
	}
	return key, value, true
}

// extractDisks finds every "<controller>:<unit>.filename" key and pairs it
// with its controller/unit, in ascending (controller, unit) order.
func extractDisks(raw map[string]string) []Disk {
	var disks []Disk
	for key, value := range raw {
		if !strings.HasSuffix(key, ".filename") {
			continue
		}
		addr := strings.TrimSuffix(key, ".filename")
		colon := strings.Index(addr, ":")
		if colon < 0 {
			continue
		}
		controller := addr[:colon]
		unit, err := strconv.Atoi(addr[colon+1:])
		if err != nil {
			continue
		}
		if !strings.HasSuffix(value, ".vmdk") {
			continue
		}
		disks = append(disks, Disk{Controller: controller, Unit: unit, VMDKPath: value})
	}
	sort.Slice(disks, func(i, j int) bool {
		if disks[i].Controller != disks[j].Controller {
			return disks[i].Controller < disks[j].Controller
		}
		return disks[i].Unit < disks[j].Unit
	})
	return disks
}

func extractNetworks(raw map[string]string) []string {
	var nets []string
	for key, value := range raw {
		if strings.HasSuffix(key, ".networkname") && value != "" {
			nets = append(nets, value)
		}
	}
	sort.Strings(nets)
	return nets
}
