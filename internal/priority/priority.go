// Package priority maps spec ids to a deterministic total-order integer.
// Lower values dispatch first. The order is derived from three layers:
// a coarse domain bucket keyed by the id prefix, a feature rank from the
// domain's declarative schema hierarchy (or a fractional alphabetical
// fallback when no schema covers the path), and a small per-test suffix
// offset inside the feature group.
package priority

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Layout constants. Each feature group owns GroupWidth consecutive values:
// numbered tests occupy [rank+1, rank+998], the group's regression test sits
// at rank+RegressionOffset, strictly after every numbered test and strictly
// before the next group. Declared schema siblings at depth d are Step(d)
// apart, so a parent's whole subtree (including its own regression test)
// sorts before the parent's next sibling.
const (
	GroupWidth       = 1000
	RegressionOffset = GroupWidth - 1
	MaxNumericSuffix = RegressionOffset - 1

	MaxDepth     = 5
	BranchFactor = 32

	// UnknownBucket is where ids with an unconfigured prefix land: after
	// every configured domain.
	UnknownBucket = 9
)

// DomainStride separates domain buckets; one bucket holds a full
// root-level fan-out of BranchFactor subtrees.
var DomainStride = int64(BranchFactor) * stepRoot

var stepRoot = func() int64 {
	s := int64(GroupWidth)
	for i := 0; i < MaxDepth; i++ {
		s *= BranchFactor
	}
	return s
}()

// Step returns the gap between adjacent declared siblings at depth d
// (0 = root properties). Beyond MaxDepth the gap bottoms out at one group
// width, which keeps deep trees deterministic at the cost of resolution.
func Step(d int) int64 {
	if d < 0 {
		d = 0
	}
	s := stepRoot
	for i := 0; i < d && s > GroupWidth; i++ {
		s /= BranchFactor
	}
	if s < GroupWidth {
		s = GroupWidth
	}
	return s
}

// ID is a parsed spec identifier of the form PREFIX-ENTITY-NNN or
// PREFIX-ENTITY-REG.
type ID struct {
	Prefix     string
	Entity     string // hyphenated, e.g. THEME-COLORS
	Suffix     int    // numeric test number; 0 when Regression
	Regression bool
}

var idRe = regexp.MustCompile(`^([A-Z]+)-([A-Z][A-Z0-9-]*?)-(\d{3,}|REG)$`)

// ParseID parses a spec id. The numeric suffix must be at least three digits;
// the literal suffix REG marks the feature group's regression test.
func ParseID(specID string) (ID, error) {
	m := idRe.FindStringSubmatch(specID)
	if m == nil {
		return ID{}, fmt.Errorf("malformed spec id %q", specID)
	}
	id := ID{Prefix: m[1], Entity: m[2]}
	if m[3] == "REG" {
		id.Regression = true
		return id, nil
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return ID{}, fmt.Errorf("malformed spec id %q", specID)
	}
	id.Suffix = n
	return id, nil
}

// FeaturePath returns the slash-separated lowercase feature path of the id's
// entity, e.g. THEME-COLORS -> theme/colors.
func (id ID) FeaturePath() string {
	return strings.ToLower(strings.ReplaceAll(id.Entity, "-", "/"))
}

// Domain is one configured prefix bucket, optionally backed by a schema
// hierarchy.
type Domain struct {
	Prefix    string
	Bucket    int
	Hierarchy *Hierarchy // nil for domains without a declarative schema
}

// Calculator computes priorities. It is safe for concurrent use once built;
// identical inputs always yield identical output.
type Calculator struct {
	domains map[string]Domain
}

// NewCalculator builds a calculator over the configured domains.
func NewCalculator(domains []Domain) *Calculator {
	m := make(map[string]Domain, len(domains))
	for _, d := range domains {
		m[d.Prefix] = d
	}
	return &Calculator{domains: m}
}

// Priority returns the total-order priority of specID. Malformed ids are an
// error; every well-formed id gets a value, falling back to the unknown
// bucket and the fractional path encoding as needed.
func (c *Calculator) Priority(specID string) (int64, error) {
	id, err := ParseID(specID)
	if err != nil {
		return 0, err
	}
	return c.PriorityOf(id), nil
}

// PriorityOf computes the priority of an already-parsed id.
func (c *Calculator) PriorityOf(id ID) int64 {
	bucket := UnknownBucket
	var dom Domain
	if d, ok := c.domains[id.Prefix]; ok {
		dom = d
		bucket = d.Bucket
	}
	base := int64(bucket) * DomainStride

	path := id.FeaturePath()
	var rank int64
	if dom.Hierarchy != nil {
		rank = dom.Hierarchy.Rank(path)
	} else {
		rank = encodePath(strings.Split(path, "/"))
	}
	return base + rank + suffixOffset(id)
}

func suffixOffset(id ID) int64 {
	if id.Regression {
		return RegressionOffset
	}
	n := id.Suffix
	if n > MaxNumericSuffix {
		n = MaxNumericSuffix
	}
	return int64(n)
}
