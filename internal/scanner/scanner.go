// Package scanner discovers work items by parsing test sources for
// intentionally failing specs. Only tests marked with the failing-test
// modifier count as remaining work; passing and disabled tests are excluded.
package scanner

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// Markers. `it.fails(...)` / `test.fails(...)` (and their .each variants)
// declare a spec that is expected to fail until implemented; `.skip` and
// `.todo` disable a test entirely and are never queued.
var (
	failsRe    = regexp.MustCompile(`\b(?:it|test)\.fails(?:\.each\([^)]*\))?\s*\(`)
	disabledRe = regexp.MustCompile(`\b(?:it|test)\.(?:skip|todo)\b`)
	specIDRe   = regexp.MustCompile(`\b[A-Z]+-[A-Z][A-Z0-9-]*-(?:\d{3,}|REG)\b`)
	titleRe    = regexp.MustCompile("['\"`]([^'\"`]+)['\"`]")
)

// idLookahead is how many lines past the marker the spec id may appear
// (multi-line test titles).
const idLookahead = 3

// scanConcurrency bounds the file fan-out; scanning is read-only so the only
// cost is open file handles.
const scanConcurrency = 8

// Result is one scan over the corpus.
type Result struct {
	Items      []models.WorkItem `json:"items"`
	Files      int               `json:"files"`
	Skipped    int               `json:"skipped"` // fails-marked tests with no recognizable spec id
	Unreadable int               `json:"unreadable"`
}

// Scan walks root for test sources and extracts one work item per
// intentionally failing spec. A single unreadable file degrades to zero items
// from that file; items are returned sorted by (file path, spec id) and
// deduplicated on that pair.
func Scan(ctx context.Context, root string) (*Result, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("scan walk error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() {
			if path != root && (d.Name() == "node_modules" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Files: len(files)}
	var mu sync.Mutex
	sem := make(chan struct{}, scanConcurrency)
	var wg sync.WaitGroup
	for _, path := range files {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			items, skipped, err := scanFile(root, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("unreadable test file skipped", "path", path, "err", err)
				res.Unreadable++
				return
			}
			res.Items = append(res.Items, items...)
			res.Skipped += skipped
		}(path)
	}
	wg.Wait()

	dedupe(res)
	return res, nil
}

// WriteResults persists a scan result as JSON for inspection between runs.
func WriteResults(path string, res *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func isTestFile(path string) bool {
	return strings.HasSuffix(path, ".test.ts") || strings.HasSuffix(path, ".test.tsx")
}

// scanFile extracts work items from one test source. Tests whose title (on
// the marker line or within the next few lines) carries no spec id are
// silently skipped.
func scanFile(root, path string) (items []models.WorkItem, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	feature := featurePath(rel)

	for i, line := range lines {
		if !failsRe.MatchString(line) || disabledRe.MatchString(line) {
			continue
		}
		id, title := findID(lines, i)
		if id == "" {
			skipped++
			continue
		}
		items = append(items, models.WorkItem{
			SpecID:      id,
			FilePath:    filepath.ToSlash(rel),
			TestName:    title,
			Description: describe(title, id),
			FeaturePath: feature,
			Line:        i + 1,
			Status:      models.StatusPending,
		})
	}
	return items, skipped, nil
}

// findID looks for a spec id on the marker line or the next few lines and
// returns it with the surrounding title text.
func findID(lines []string, start int) (id, title string) {
	end := start + idLookahead
	if end >= len(lines) {
		end = len(lines) - 1
	}
	for i := start; i <= end; i++ {
		if m := specIDRe.FindString(lines[i]); m != "" {
			if tm := titleRe.FindStringSubmatch(lines[i]); tm != nil {
				title = strings.TrimSpace(tm[1])
			} else {
				title = m
			}
			return m, title
		}
	}
	return "", ""
}

func describe(title, id string) string {
	d := strings.TrimSpace(strings.TrimPrefix(title, id))
	return strings.TrimLeft(d, ":- ")
}

// featurePath maps a root-relative test path to its feature location:
// specs/app/theme/colors.test.ts -> app/theme/colors.
func featurePath(rel string) string {
	p := filepath.ToSlash(rel)
	p = strings.TrimSuffix(p, ".test.tsx")
	p = strings.TrimSuffix(p, ".test.ts")
	p = strings.TrimPrefix(p, "specs/")
	return p
}

// dedupe drops duplicate (file path, spec id) pairs and sorts items for
// stable output across runs.
func dedupe(res *Result) {
	seen := make(map[[2]string]bool, len(res.Items))
	out := res.Items[:0]
	for _, it := range res.Items {
		key := [2]string{it.FilePath, it.SpecID}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].SpecID < out[j].SpecID
	})
	res.Items = out
}
