// Package deps builds the advisory dependency graph: for each work item it
// parses the import statements of the item's test source, resolves them to
// candidate paths, and flags the item ready or blocked. The result is an
// inspection artifact only; it never hard-gates dispatch.
package deps

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

var importRe = regexp.MustCompile(`(?:import\s+(?:[^'"]*\s+from\s+)?|require\()\s*['"]([^'"]+)['"]`)

// extCandidates are tried in order when an import omits its extension.
var extCandidates = []string{"", ".ts", ".tsx", "/index.ts", "/index.tsx"}

// Analyzer resolves imports relative to the corpus root. Alias is the single
// supported alias prefix (conventionally "@/"), rewritten to SourceRoot.
type Analyzer struct {
	Root       string
	SourceRoot string
	Alias      string
}

// Analyze resolves the dependencies of one work item. An unreadable source
// degrades to an empty, ready record rather than an error: the analyzer
// never blocks the pipeline.
func (a *Analyzer) Analyze(item models.WorkItem) models.DependencyInfo {
	info := models.DependencyInfo{SpecID: item.SpecID, Ready: true}
	path := filepath.Join(a.Root, filepath.FromSlash(item.FilePath))
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("dependency analysis skipped unreadable source", "path", path, "err", err)
		return info
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := importRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		spec := m[1]
		rel, ok := a.resolve(item.FilePath, spec)
		if !ok {
			continue // external package import
		}
		resolved, exists := a.locate(rel)
		info.Dependencies = append(info.Dependencies, models.Dependency{
			ImportPath:   spec,
			ResolvedPath: resolved,
			Exists:       exists,
		})
		if !exists {
			info.Missing = append(info.Missing, resolved)
		}
	}
	sort.Strings(info.Missing)
	info.Ready = len(info.Missing) == 0
	return info
}

// resolve maps an import specifier to a corpus-root-relative path. Returns
// ok=false for bare module specifiers (external packages).
func (a *Analyzer) resolve(fromFile, spec string) (string, bool) {
	switch {
	case a.Alias != "" && strings.HasPrefix(spec, a.Alias):
		return filepath.ToSlash(filepath.Join(a.SourceRoot, strings.TrimPrefix(spec, a.Alias))), true
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		dir := filepath.Dir(filepath.FromSlash(fromFile))
		return filepath.ToSlash(filepath.Join(dir, spec)), true
	default:
		return "", false
	}
}

// locate tries the extension candidates for a resolved path and reports the
// first that exists; when none do it reports the bare .ts candidate.
func (a *Analyzer) locate(rel string) (string, bool) {
	for _, ext := range extCandidates {
		cand := rel + ext
		if ext == "" && filepath.Ext(rel) == "" {
			continue // extensionless paths only match via candidates
		}
		if _, err := os.Stat(filepath.Join(a.Root, filepath.FromSlash(cand))); err == nil {
			return cand, true
		}
	}
	if filepath.Ext(rel) == "" {
		rel += ".ts"
	}
	return rel, false
}

// AnalyzeAll analyzes every item and returns the report keyed by spec id.
func (a *Analyzer) AnalyzeAll(items []models.WorkItem) map[string]models.DependencyInfo {
	report := make(map[string]models.DependencyInfo, len(items))
	for _, it := range items {
		report[it.SpecID] = a.Analyze(it)
	}
	return report
}

// WriteReport persists the dependency report as JSON at path.
func WriteReport(path string, report map[string]models.DependencyInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadReport loads a previously written dependency report.
func ReadReport(path string) (map[string]models.DependencyInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report map[string]models.DependencyInfo
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return report, nil
}
