package registry

import (
	"fmt"
	"sort"
	"strings"
)

// DriftLevel is the ordered severity of a schema change.
type DriftLevel int

const (
	DriftNone DriftLevel = iota
	DriftMinor
	DriftMajor
	DriftCritical
)

func (l DriftLevel) String() string {
	switch l {
	case DriftNone:
		return "None"
	case DriftMinor:
		return "Minor"
	case DriftMajor:
		return "Major"
	case DriftCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// DriftReport is the outcome of comparing two versions of a schema
// with the same name: the maximum severity across all detected
// changes, plus a textual description of each.
type DriftReport struct {
	Level       DriftLevel
	Changes     []string
	PriorDigest *[32]byte
	CurrDigest  [32]byte
}

// DetectDrift compares prior and current schema records with the same
// name and produces a drift report whose level equals the maximum
// severity across all detected changes.
func DetectDrift(prior, current SchemaRecord) (DriftReport, error) {
	currDigest, err := current.Digest()
	if err != nil {
		return DriftReport{}, err
	}
	priorDigest, err := prior.Digest()
	if err != nil {
		return DriftReport{}, err
	}

	if priorDigest == currDigest {
		return DriftReport{Level: DriftNone, CurrDigest: currDigest, PriorDigest: &priorDigest}, nil
	}

	var changes []levelledChange

	if prior.Name != current.Name {
		changes = append(changes, levelledChange{DriftCritical, fmt.Sprintf("name changed from %q to %q", prior.Name, current.Name)})
	}

	priorType, _ := schemaField(prior.InputSchema, "type")
	currType, _ := schemaField(current.InputSchema, "type")
	if priorType != currType {
		changes = append(changes, levelledChange{DriftCritical, fmt.Sprintf("input schema top-level type changed from %v to %v", priorType, currType)})
	}
	priorOutType, _ := schemaField(prior.OutputSchema, "type")
	currOutType, _ := schemaField(current.OutputSchema, "type")
	if priorOutType != currOutType {
		changes = append(changes, levelledChange{DriftCritical, fmt.Sprintf("output schema top-level type changed from %v to %v", priorOutType, currOutType)})
	}

	changes = append(changes, diffProperties(prior.InputSchema, current.InputSchema)...)

	if sim := jaccard(prior.Description, current.Description); sim < 1.0 {
		if sim < 0.30 {
			changes = append(changes, levelledChange{DriftMajor, fmt.Sprintf("description similarity %.2f below 0.30", sim)})
		} else {
			changes = append(changes, levelledChange{DriftMinor, fmt.Sprintf("description similarity %.2f", sim)})
		}
	}

	if len(changes) == 0 {
		changes = append(changes, levelledChange{DriftMinor, "schema modified in a way not otherwise classified"})
	}

	report := DriftReport{CurrDigest: currDigest, PriorDigest: &priorDigest}
	for _, c := range changes {
		if c.level > report.Level {
			report.Level = c.level
		}
		report.Changes = append(report.Changes, c.description)
	}
	return report, nil
}

type levelledChange struct {
	level       DriftLevel
	description string
}

// diffProperties walks the "properties" and "required" members of two
// JSON-schema-like documents and classifies each difference by its
// severity.
func diffProperties(prior, current interface{}) []levelledChange {
	var changes []levelledChange

	priorProps, _ := schemaField(prior, "properties")
	currProps, _ := schemaField(current, "properties")
	priorMap, _ := priorProps.(map[string]interface{})
	currMap, _ := currProps.(map[string]interface{})

	priorReq := requiredSet(prior)
	currReq := requiredSet(current)

	names := make(map[string]bool)
	for k := range priorMap {
		names[k] = true
	}
	for k := range currMap {
		names[k] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		pv, pOk := priorMap[name]
		cv, cOk := currMap[name]

		switch {
		case pOk && !cOk:
			if priorReq[name] {
				changes = append(changes, levelledChange{DriftCritical, fmt.Sprintf("required property %q removed", name)})
			} else {
				changes = append(changes, levelledChange{DriftMajor, fmt.Sprintf("optional property %q removed", name)})
			}
		case !pOk && cOk:
			if currReq[name] {
				changes = append(changes, levelledChange{DriftMajor, fmt.Sprintf("required property %q added", name)})
			} else {
				changes = append(changes, levelledChange{DriftMinor, fmt.Sprintf("optional property %q added", name)})
			}
		default:
			pt, _ := schemaField(pv, "type")
			ct, _ := schemaField(cv, "type")
			if pt != ct {
				changes = append(changes, levelledChange{DriftCritical, fmt.Sprintf("property %q type changed from %v to %v", name, pt, ct)})
			} else if !deepEqualJSON(pv, cv) {
				changes = append(changes, levelledChange{DriftMinor, fmt.Sprintf("property %q value modified", name)})
			}
		}

		if !priorReq[name] && currReq[name] && pOk && cOk {
			changes = append(changes, levelledChange{DriftMajor, fmt.Sprintf("property %q made newly required", name)})
		}
		if priorReq[name] && !currReq[name] && pOk && cOk {
			changes = append(changes, levelledChange{DriftMinor, fmt.Sprintf("required constraint dropped for %q", name)})
		}
	}

	return changes
}

func requiredSet(schema interface{}) map[string]bool {
	set := make(map[string]bool)
	req, ok := schemaField(schema, "required")
	if !ok {
		return set
	}
	arr, ok := req.([]interface{})
	if !ok {
		return set
	}
	for _, v := range arr {
		if s, ok := v.(string); ok {
			set[s] = true
		}
	}
	return set
}

func schemaField(schema interface{}, key string) (interface{}, bool) {
	m, ok := schema.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func deepEqualJSON(a, b interface{}) bool {
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ca) == string(cb)
}

// jaccard computes word-set Jaccard similarity over whitespace-split
// tokens of two strings.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
