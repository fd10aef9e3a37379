package grbl

import (
	"fmt"
	"strings"

	"github.com/mastercactapus/motorctl/coord"
)

// StateIdle is the state name Grbl reports when no motion is in progress.
const StateIdle = "Idle"

// Status is one decoded status report.
type Status struct {
	State string `json:"state"`
	Idle  bool   `json:"idle"`

	MPos coord.Point `json:"mpos"`
	WPos coord.Point `json:"wpos"`
	WCO  coord.Point `json:"wco"`

	// hasWCO is set once the work offset has been reported or derived.
	hasWCO bool
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrMalformedStatus}, args...)...)
}

// ParseStatus decodes a status report such as
//
//	<Idle,MPos:5.000,0.000,0.000,WPos:0.000,0.000,0.000>
//
// Grbl 1.1 style reports (`<Idle|MPos:..|WCO:..>`) are accepted as well.
func ParseStatus(line string) (Status, error) {
	return parseStatus(Status{}, line)
}

// parseStatus uses prev for values a Grbl 1.1 report omits (WCO is only sent periodically).
func parseStatus(prev Status, line string) (Status, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return Status{}, malformed("short line %q", line)
	}
	data := line[1 : len(line)-1]
	if strings.ContainsRune(data, '|') {
		return parsePipeStatus(prev, data)
	}

	fields := strings.Split(data, ",")
	if len(fields) < 6 {
		return Status{}, malformed("expected at least 6 fields, got %d in %q", len(fields), line)
	}

	groups, err := keyedGroups(fields[1:])
	if err != nil {
		return Status{}, err
	}

	stat := Status{State: fields[0], Idle: fields[0] == StateIdle}
	stat.MPos, err = groupPoint(groups, "MPos")
	if err != nil {
		return Status{}, err
	}
	stat.WPos, err = groupPoint(groups, "WPos")
	if err != nil {
		return Status{}, err
	}
	stat.WCO = stat.MPos.Sub(stat.WPos)
	stat.hasWCO = true
	return stat, nil
}

// keyedGroups collects `Key:v1,v2,...` runs; fields without a key belong to the
// preceding group.
func keyedGroups(fields []string) (map[string]string, error) {
	groups := make(map[string]string, 4)
	var key string
	for _, f := range fields {
		if i := strings.IndexByte(f, ':'); i >= 0 {
			key = f[:i]
			groups[key] = f[i+1:]
			continue
		}
		if key == "" {
			return nil, malformed("value %q before any key", f)
		}
		groups[key] += "," + f
	}
	return groups, nil
}

func groupPoint(groups map[string]string, key string) (coord.Point, error) {
	val, ok := groups[key]
	if !ok {
		return coord.Point{}, malformed("missing %s", key)
	}
	p, err := coord.Parse(val)
	if err != nil {
		return coord.Point{}, malformed("%s: %v", key, err)
	}
	return p, nil
}

func parsePipeStatus(prev Status, data string) (Status, error) {
	parts := strings.Split(data, "|")
	stat := prev
	stat.State = strings.SplitN(parts[0], ":", 2)[0]
	stat.Idle = stat.State == StateIdle

	var hasM, hasW, hasWCO bool
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		var err error
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = coord.Parse(sParts[1])
			hasM = true
		case "WPos":
			stat.WPos, err = coord.Parse(sParts[1])
			hasW = true
		case "WCO":
			stat.WCO, err = coord.Parse(sParts[1])
			hasWCO = true
			stat.hasWCO = true
		}
		if err != nil {
			return Status{}, malformed("%s: %v", sParts[0], err)
		}
	}

	switch {
	case hasM && hasW:
		if !hasWCO {
			stat.WCO = stat.MPos.Sub(stat.WPos)
			stat.hasWCO = true
		}
	case !hasM && !hasW:
		return Status{}, malformed("no position in %q", data)
	case !stat.hasWCO:
		// one position alone can't be converted until a WCO has been seen
		return Status{}, malformed("work offset not reported yet in %q", data)
	case hasM:
		stat.WPos = stat.MPos.Sub(stat.WCO)
	default:
		stat.MPos = stat.WPos.Add(stat.WCO)
	}
	return stat, nil
}
