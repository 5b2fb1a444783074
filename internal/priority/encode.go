package priority

// Fractional alphabetical encoding. Feature names that no schema declares
// still need a stable slot in the order, so a name's leading letters are
// packed into a fixed-width integer with a mixed-radix encoding that
// preserves lexicographic order: for any two segments a < b (byte order over
// lowercase letters), frac(a) <= frac(b), with equality only when the
// segments share their entire encoded prefix. Each encoded value is then
// scaled so one segment's tests stay contiguous inside a single group.
const (
	// fracRadix is 27: 26 letters plus a leading zero for padding, so
	// "ab" sorts after "a" exactly as strings do.
	fracRadix = 27

	// segRange3 encodes three leading characters of one segment; used both
	// for undeclared children hanging off a declared schema parent and for
	// whole-path encoding in schemaless domains.
	segRange3 = fracRadix * fracRadix * fracRadix

	// pathLevels is how many leading path segments the schemaless
	// encoding distinguishes; deeper segments fold into their ancestor's
	// slot. Two levels of three characters are the most that fit inside
	// one domain stride.
	pathLevels = 2
)

// charVal maps a byte to its radix digit: a..z -> 1..26, everything else 0.
// Digits and punctuation inside a segment all collapse to 0, which keeps the
// encoding total without inventing an order the spec ids never rely on.
func charVal(b byte) int64 {
	if b >= 'a' && b <= 'z' {
		return int64(b-'a') + 1
	}
	if b >= 'A' && b <= 'Z' {
		return int64(b-'A') + 1
	}
	return 0
}

// fracSegment packs the first n characters of seg into [0, fracRadix^n).
func fracSegment(seg string, n int) int64 {
	var v int64
	for i := 0; i < n; i++ {
		var d int64
		if i < len(seg) {
			d = charVal(seg[i])
		}
		v = v*fracRadix + d
	}
	return v
}

// encodePath maps a full feature path to a rank for domains without a
// declarative schema: the first pathLevels segments are packed most
// significant first, then scaled to group width so each leaf's tests stay
// contiguous.
func encodePath(segments []string) int64 {
	var code int64
	for d := 0; d < pathLevels; d++ {
		var v int64
		if d < len(segments) {
			v = fracSegment(segments[d], 3)
		}
		code = code*segRange3 + v
	}
	return code * GroupWidth
}

// fallbackChild ranks an undeclared segment under a declared parent at child
// depth d. The encoded value lands strictly after the parent's own group
// (including its regression test) and before the parent's next declared
// sibling whenever the depth leaves room; past that the order among
// undeclared siblings stays lexicographic but groups may touch.
func fallbackChild(parentRank int64, d int, seg string) int64 {
	scale := (Step(d) - 2*GroupWidth) / segRange3
	if scale < 1 {
		scale = 1
	}
	return parentRank + GroupWidth + fracSegment(seg, 3)*scale
}
