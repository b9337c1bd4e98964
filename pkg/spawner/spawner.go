// Package spawner builds a device population from graph input:
// plain-text nodes/arcs files, or an alternate YAML topology shape
// for hand-written test fixtures.
package spawner

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/scheduler"
	"github.com/fcpp-project/fcpp-go/pkg/transport"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// NodeSpec is one parsed line of a nodes file: a uid, its spawn time,
// and the caller-declared attribute values in the order attrNames was
// given to LoadNodes.
type NodeSpec struct {
	UID   uint32
	Start float64
	Attrs map[string]string
}

// ArcSpec is one parsed line of an arcs file: a directed connectivity
// link from one uid to another.
type ArcSpec struct {
	From, To uint32
}

// LoadNodes parses a whitespace-separated nodes file:
// one node per line, fields in order `uid [start] attr...` where
// attrNames names and orders the trailing attribute columns. A line
// is read with a start column when it carries exactly
// len(attrNames)+2 fields (uid, start, attrs...); otherwise it's read
// with len(attrNames)+1 fields and defaultStart is used instead, so
// the optional start column needs no external flag.
func LoadNodes(path string, attrNames []string, defaultStart float64) ([]NodeSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.NewConfigError("spawner.LoadNodes", fmt.Sprintf("opening %s: %v", path, err))
	}
	defer f.Close()

	var specs []NodeSpec
	scanner := bufio.NewScanner(f)
	lineNo := 0
	withStart := len(attrNames) + 2
	withoutStart := len(attrNames) + 1

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		var uidField, startField string
		var attrFields []string
		switch len(fields) {
		case withStart:
			uidField, startField, attrFields = fields[0], fields[1], fields[2:]
		case withoutStart:
			uidField, attrFields = fields[0], fields[1:]
		default:
			return nil, util.NewConfigError("spawner.LoadNodes",
				fmt.Sprintf("%s:%d: expected %d or %d fields, got %d", path, lineNo, withoutStart, withStart, len(fields)))
		}

		uid, err := strconv.ParseUint(uidField, 10, 32)
		if err != nil {
			return nil, util.NewConfigError("spawner.LoadNodes", fmt.Sprintf("%s:%d: invalid uid %q: %v", path, lineNo, uidField, err))
		}

		start := defaultStart
		if startField != "" {
			start, err = strconv.ParseFloat(startField, 64)
			if err != nil {
				return nil, util.NewConfigError("spawner.LoadNodes", fmt.Sprintf("%s:%d: invalid start %q: %v", path, lineNo, startField, err))
			}
		}

		attrs := make(map[string]string, len(attrNames))
		for i, name := range attrNames {
			attrs[name] = attrFields[i]
		}

		specs = append(specs, NodeSpec{UID: uint32(uid), Start: start, Attrs: attrs})
	}
	if err := scanner.Err(); err != nil {
		return nil, util.NewConfigError("spawner.LoadNodes", fmt.Sprintf("reading %s: %v", path, err))
	}
	return specs, nil
}

// LoadArcs parses a whitespace-separated arcs file: one
// `from_uid to_uid` pair per line, each producing a directed link.
func LoadArcs(path string) ([]ArcSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.NewConfigError("spawner.LoadArcs", fmt.Sprintf("opening %s: %v", path, err))
	}
	defer f.Close()

	var arcs []ArcSpec
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, util.NewConfigError("spawner.LoadArcs", fmt.Sprintf("%s:%d: expected 2 fields, got %d", path, lineNo, len(fields)))
		}
		from, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, util.NewConfigError("spawner.LoadArcs", fmt.Sprintf("%s:%d: invalid from_uid %q: %v", path, lineNo, fields[0], err))
		}
		to, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, util.NewConfigError("spawner.LoadArcs", fmt.Sprintf("%s:%d: invalid to_uid %q: %v", path, lineNo, fields[1], err))
		}
		arcs = append(arcs, ArcSpec{From: uint32(from), To: uint32(to)})
	}
	if err := scanner.Err(); err != nil {
		return nil, util.NewConfigError("spawner.LoadArcs", fmt.Sprintf("reading %s: %v", path, err))
	}
	return arcs, nil
}

// arcConnectivity builds a transport.ConnectivityFunc from a static
// arc list: sender can reach receiver only if an arc lists that exact
// ordered pair. An undirected link needs both ordered pairs listed in
// the arcs file.
func arcConnectivity(arcs []ArcSpec) transport.ConnectivityFunc {
	allowed := make(map[[2]uint32]bool, len(arcs))
	for _, a := range arcs {
		allowed[[2]uint32{a.From, a.To}] = true
	}
	return func(sender, receiver *node.Device) bool {
		return allowed[[2]uint32{sender.UID, receiver.UID}]
	}
}

// BuildPopulation emplaces one device per NodeSpec into net and returns
// a transport.Simulated connector over the net's population, so the
// caller can register it as the net's Connector for round broadcasts.
// When arcs is non-empty the connector uses a static connectivity
// predicate derived from arcs instead of a distance metric — a fixed
// graph rather than a geometric one; with no arcs it is
// AlwaysConnected.
func BuildPopulation(net *scheduler.Net, nodes []NodeSpec, arcs []ArcSpec) (*transport.Simulated, error) {
	for _, spec := range nodes {
		if _, err := net.Emplace(spec.UID, spec.Start); err != nil {
			return nil, err
		}
	}

	var connectivity transport.ConnectivityFunc
	if len(arcs) > 0 {
		connectivity = arcConnectivity(arcs)
	}
	return transport.NewSimulated(net.Identifier, connectivity, nil), nil
}
