package priority

import (
	"testing"
)

const appSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string"},
    "version": {"type": "string"},
    "theme": {
      "type": "object",
      "properties": {
        "colors": {"type": "object", "properties": {"primary": {"type": "string"}}},
        "fonts": {"type": "object"}
      }
    },
    "tables": {"type": "object"}
  }
}`

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	h, err := BuildHierarchy([]byte(appSchema))
	if err != nil {
		t.Fatalf("BuildHierarchy: %v", err)
	}
	return NewCalculator([]Domain{
		{Prefix: "APP", Bucket: 1, Hierarchy: h},
		{Prefix: "API", Bucket: 2},
	})
}

func mustPriority(t *testing.T, c *Calculator, id string) int64 {
	t.Helper()
	p, err := c.Priority(id)
	if err != nil {
		t.Fatalf("Priority(%s): %v", id, err)
	}
	return p
}

func TestParseID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want ID
		ok   bool
	}{
		{"APP-NAME-001", ID{Prefix: "APP", Entity: "NAME", Suffix: 1}, true},
		{"APP-THEME-COLORS-012", ID{Prefix: "APP", Entity: "THEME-COLORS", Suffix: 12}, true},
		{"API-PATHS-HEALTH-003", ID{Prefix: "API", Entity: "PATHS-HEALTH", Suffix: 3}, true},
		{"APP-NAME-REG", ID{Prefix: "APP", Entity: "NAME", Regression: true}, true},
		{"app-name-001", ID{}, false},
		{"APP-NAME-01", ID{}, false},
		{"APP-001", ID{}, false},
		{"APPNAME001", ID{}, false},
		{"", ID{}, false},
	}
	for _, tc := range cases {
		got, err := ParseID(tc.in)
		if tc.ok != (err == nil) {
			t.Fatalf("ParseID(%q) err=%v, want ok=%v", tc.in, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseID(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestPriority_deterministic(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	ids := []string{"APP-NAME-001", "APP-THEME-COLORS-002", "API-PATHS-HEALTH-001", "ZZZ-WHATEVER-001", "APP-NAME-REG"}
	for _, id := range ids {
		first := mustPriority(t, c, id)
		for i := 0; i < 50; i++ {
			if got := mustPriority(t, c, id); got != first {
				t.Fatalf("Priority(%s) unstable: %d then %d", id, first, got)
			}
		}
		// A second calculator over the same inputs must agree (restart determinism).
		if got := mustPriority(t, testCalculator(t), id); got != first {
			t.Fatalf("Priority(%s) differs across calculators: %d vs %d", id, first, got)
		}
	}
}

func TestPriority_domainOrdering(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	// Every APP item outranks (sorts before) every API item, regardless of
	// APP's internal ordering.
	appIDs := []string{"APP-NAME-001", "APP-THEME-COLORS-099", "APP-ZEBRA-WIDGETS-001", "APP-TABLES-REG"}
	apiIDs := []string{"API-PATHS-HEALTH-001", "API-AAA-001"}
	for _, a := range appIDs {
		for _, b := range apiIDs {
			if pa, pb := mustPriority(t, c, a), mustPriority(t, c, b); pa >= pb {
				t.Fatalf("expected %s (%d) < %s (%d)", a, pa, b, pb)
			}
		}
	}
}

func TestPriority_unknownPrefixSortsLast(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	unknown := mustPriority(t, c, "ZZZ-ANYTHING-001")
	for _, id := range []string{"APP-NAME-001", "API-PATHS-HEALTH-001"} {
		if p := mustPriority(t, c, id); p >= unknown {
			t.Fatalf("expected configured domain %s (%d) < unknown (%d)", id, p, unknown)
		}
	}
}

func TestPriority_requiredBeforeOptional(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	name := mustPriority(t, c, "APP-NAME-001")
	themeColors := mustPriority(t, c, "APP-THEME-COLORS-001")
	if name >= themeColors {
		t.Fatalf("required root property must outrank nested optional: name=%d theme/colors=%d", name, themeColors)
	}
	// Metadata-first: version (metadata) before tables (alphabetical tail),
	// even though t < v alphabetically.
	version := mustPriority(t, c, "APP-VERSION-001")
	tables := mustPriority(t, c, "APP-TABLES-001")
	if version >= tables {
		t.Fatalf("metadata property must outrank alphabetical tail: version=%d tables=%d", version, tables)
	}
}

func TestPriority_regressionOrdering(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	// Regression sorts after every numbered test of its group...
	reg := mustPriority(t, c, "APP-NAME-REG")
	for _, id := range []string{"APP-NAME-001", "APP-NAME-042", "APP-NAME-998"} {
		if p := mustPriority(t, c, id); p >= reg {
			t.Fatalf("expected %s (%d) < APP-NAME-REG (%d)", id, p, reg)
		}
	}
	// ...and before the first test of the next group.
	next := mustPriority(t, c, "APP-VERSION-001")
	if reg >= next {
		t.Fatalf("expected APP-NAME-REG (%d) < APP-VERSION-001 (%d)", reg, next)
	}
}

func TestPriority_descendantsAfterAncestorRegression(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	themeReg := mustPriority(t, c, "APP-THEME-REG")
	for _, id := range []string{"APP-THEME-COLORS-001", "APP-THEME-COLORS-PRIMARY-001", "APP-THEME-FONTS-001"} {
		if p := mustPriority(t, c, id); p <= themeReg {
			t.Fatalf("descendant %s (%d) must sort after ancestor regression (%d)", id, p, themeReg)
		}
	}
	// Deeper sibling order: colors before fonts (declaration is alphabetical
	// here), and colors/primary inside the colors slot, before fonts.
	colors := mustPriority(t, c, "APP-THEME-COLORS-001")
	primary := mustPriority(t, c, "APP-THEME-COLORS-PRIMARY-001")
	fonts := mustPriority(t, c, "APP-THEME-FONTS-001")
	if !(colors < primary && primary < fonts) {
		t.Fatalf("want colors (%d) < colors/primary (%d) < fonts (%d)", colors, primary, fonts)
	}
}

func TestPriority_undeclaredSiblingFallback(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	// Undeclared children of a declared parent keep lexicographic order.
	alpha := mustPriority(t, c, "APP-THEME-ALPHA-001")
	zed := mustPriority(t, c, "APP-THEME-ZED-001")
	if alpha >= zed {
		t.Fatalf("undeclared siblings out of order: alpha=%d zed=%d", alpha, zed)
	}
	// And they still sort after the parent's own regression test.
	themeReg := mustPriority(t, c, "APP-THEME-REG")
	if alpha <= themeReg {
		t.Fatalf("undeclared child (%d) must sort after parent regression (%d)", alpha, themeReg)
	}
}

func TestPriority_schemalessDomain(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	// API has no schema: full-path fractional encoding, lexicographic.
	ordered := []string{
		"API-AUTH-LOGIN-001",
		"API-AUTH-LOGIN-REG",
		"API-AUTH-TOKEN-001",
		"API-PATHS-HEALTH-001",
		"API-PATHS-HEALTH-002",
		"API-USERS-001",
	}
	prev := int64(-1)
	prevID := ""
	for _, id := range ordered {
		p := mustPriority(t, c, id)
		if p <= prev {
			t.Fatalf("expected %s (%d) < %s (%d)", prevID, prev, id, p)
		}
		prev, prevID = p, id
	}
}

func TestPriority_attemptsMalformedID(t *testing.T) {
	t.Parallel()
	c := testCalculator(t)
	if _, err := c.Priority("not-a-spec-id"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestBuildHierarchy_malformedNodesDegrade(t *testing.T) {
	t.Parallel()
	// "broken" has a properties value that is not an object; the walk must
	// keep the declared rank for "broken" itself and carry on with siblings.
	h, err := BuildHierarchy([]byte(`{
		"properties": {
			"good": {"type": "string"},
			"broken": 42
		}
	}`))
	if err != nil {
		t.Fatalf("BuildHierarchy: %v", err)
	}
	if h.Len() != 1 {
		t.Fatalf("want only the parseable property ranked, got %d", h.Len())
	}
}

func TestBuildHierarchy_rootParseError(t *testing.T) {
	t.Parallel()
	if _, err := BuildHierarchy([]byte(`{"properties": [`)); err == nil {
		t.Fatal("expected error for unparseable schema document")
	}
}
