package priority

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Hierarchy is the typed rank map built from one domain's declarative JSON
// schema. Ranks are assigned by walking property declarations: required root
// properties first in declaration order, optional root properties
// metadata-first then alphabetical, and nested properties offset from their
// parent by a per-level, per-sibling increment.
type Hierarchy struct {
	nodes map[string]hierarchyNode
}

type hierarchyNode struct {
	rank  int64
	depth int
}

// metadataProps are the optional root properties that outrank the remaining
// alphabetical tail. Order here is the rank order.
var metadataProps = []string{"id", "name", "version", "description"}

// recursionCap bounds the schema walk against cyclic or absurdly deep
// declarations.
const recursionCap = 10

type schemaNode struct {
	Type       string                     `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// LoadHierarchy reads and builds the hierarchy from a JSON schema file.
func LoadHierarchy(path string) (*Hierarchy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return BuildHierarchy(data)
}

// BuildHierarchy builds the hierarchy from raw schema JSON. Malformed nested
// nodes are skipped with a warning; only a document that fails to parse at
// the root is an error.
func BuildHierarchy(data []byte) (*Hierarchy, error) {
	var root schemaNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	h := &Hierarchy{nodes: make(map[string]hierarchyNode)}
	h.walk(&root, "", 0, 0)
	return h, nil
}

func (h *Hierarchy) walk(node *schemaNode, prefix string, depth int, parentRank int64) {
	if depth >= recursionCap || node.Properties == nil {
		return
	}
	names := orderedProperties(node)
	if len(names) >= BranchFactor {
		slog.Warn("schema fan-out exceeds branch factor; sibling ranks may spill into the next slot",
			"prefix", prefix, "properties", len(names))
	}
	sibling := 0
	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		var child schemaNode
		if err := json.Unmarshal(node.Properties[name], &child); err != nil {
			// Malformed nodes contribute nothing, not even a sibling slot.
			slog.Warn("skipping malformed schema node", "path", path, "err", err)
			continue
		}
		sibling++
		rank := parentRank + int64(sibling)*Step(depth)
		h.nodes[path] = hierarchyNode{rank: rank, depth: depth}
		h.walk(&child, path, depth+1, rank)
	}
}

// orderedProperties returns a node's property names in rank order: required
// first (declaration order of the required array), then optional metadata
// properties, then the rest alphabetically.
func orderedProperties(node *schemaNode) []string {
	seen := make(map[string]bool, len(node.Properties))
	var ordered []string
	for _, name := range node.Required {
		if _, ok := node.Properties[name]; !ok {
			slog.Warn("required property not declared in schema", "name", name)
			continue
		}
		if !seen[name] {
			seen[name] = true
			ordered = append(ordered, name)
		}
	}
	for _, name := range metadataProps {
		if _, ok := node.Properties[name]; ok && !seen[name] {
			seen[name] = true
			ordered = append(ordered, name)
		}
	}
	var rest []string
	for name := range node.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// Rank returns the rank of a feature path. Declared paths use their schema
// rank; undeclared paths fall back to the fractional alphabetical encoding
// hung off their deepest declared ancestor (or the domain root).
func (h *Hierarchy) Rank(featurePath string) int64 {
	if n, ok := h.nodes[featurePath]; ok {
		return n.rank
	}
	segments := strings.Split(featurePath, "/")
	for i := len(segments) - 1; i > 0; i-- {
		ancestor := strings.Join(segments[:i], "/")
		if n, ok := h.nodes[ancestor]; ok {
			return fallbackChild(n.rank, i, segments[i])
		}
	}
	return fallbackChild(0, 0, segments[0])
}

// Len reports how many feature paths the schema declares.
func (h *Hierarchy) Len() int { return len(h.nodes) }
