package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func TestIssueSpecID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title string
		want  string
	}{
		{"[APP-NAME-001] accepts a name", "APP-NAME-001"},
		{"  [API-PATHS-HEALTH-REG] regression  ", "API-PATHS-HEALTH-REG"},
		{"no convention here", ""},
		{"[] empty", ""},
	}
	for _, c := range cases {
		if got := (Issue{Title: c.title}).SpecID(); got != c.want {
			t.Fatalf("SpecID(%q) = %q, want %q", c.title, got, c.want)
		}
	}
}

func TestRetryLabel(t *testing.T) {
	t.Parallel()
	if got := RetryLabel(2, 3); got != "retry:2/3" {
		t.Fatalf("RetryLabel = %q", got)
	}
}

func TestCheckBudget(t *testing.T) {
	t.Parallel()
	f := NewFake()
	if err := CheckBudget(context.Background(), f); err != nil {
		t.Fatalf("unlimited budget: %v", err)
	}
	f.Remaining = 10
	if err := CheckBudget(context.Background(), f); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
}

func TestClient_ListOpenSpecIssues_paginates(t *testing.T) {
	t.Parallel()
	total := models.DefaultTrackerPageSize + 7
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/product/issues" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start := (page - 1) * per
		var batch []map[string]any
		for i := start; i < total && i < start+per; i++ {
			batch = append(batch, map[string]any{
				"number": i + 1,
				"title":  fmt.Sprintf("[APP-ITEM-%03d] item", i+1),
				"state":  "open",
				"labels": []map[string]string{{"name": "spec"}},
			})
		}
		_ = json.NewEncoder(w).Encode(batch)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/product", "")
	issues, err := c.ListOpenSpecIssues(context.Background())
	if err != nil {
		t.Fatalf("ListOpenSpecIssues: %v", err)
	}
	if len(issues) != total {
		t.Fatalf("got %d issues, want %d", len(issues), total)
	}
	if issues[0].SpecID() != "APP-ITEM-001" || len(issues[0].Labels) != 1 {
		t.Fatalf("first issue = %+v", issues[0])
	}
}

func TestClient_CreateSpecIssue(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/product/issues" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 42, "title": "[APP-NAME-001] accepts a name", "state": "open"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/product", "tok")
	item := models.WorkItem{SpecID: "APP-NAME-001", Description: "accepts a name", FilePath: "specs/app/name.test.ts", Priority: 12345}
	is, err := c.CreateSpecIssue(context.Background(), item)
	if err != nil {
		t.Fatalf("CreateSpecIssue: %v", err)
	}
	if is.Number != 42 {
		t.Fatalf("issue number = %d", is.Number)
	}
	if gotBody["title"] != "[APP-NAME-001] accepts a name" {
		t.Fatalf("title sent = %v", gotBody["title"])
	}
}

func TestClient_rateLimitedResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "API rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/product", "")
	_, err := c.ListOpenSpecIssues(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
}

func TestClient_RemoveLabel_missingIsNoError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/product", "")
	if err := c.RemoveLabel(context.Background(), 7, "status:queued"); err != nil {
		t.Fatalf("RemoveLabel on missing label: %v", err)
	}
}

func TestFake_issueLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFake()
	is, err := f.CreateSpecIssue(ctx, models.WorkItem{SpecID: "APP-NAME-001", Description: "x", Priority: 10})
	if err != nil {
		t.Fatalf("CreateSpecIssue: %v", err)
	}
	if err := f.AddLabels(ctx, is.Number, models.LabelInProgress); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveLabel(ctx, is.Number, models.LabelQueued); err != nil {
		t.Fatal(err)
	}
	labels := f.LabelsOf(is.Number)
	if !hasLabel(labels, models.LabelInProgress) || hasLabel(labels, models.LabelQueued) {
		t.Fatalf("labels = %v", labels)
	}
	open, _ := f.ListOpenSpecIssues(ctx)
	if len(open) != 1 || open[0].SpecID() != "APP-NAME-001" {
		t.Fatalf("open = %+v", open)
	}
}
