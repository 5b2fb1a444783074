package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sovrium/sovrium-sub014/internal/history"
	"github.com/sovrium/sovrium-sub014/pkg/models"
)

func TestOpenSkipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	if _, err := st.RecordAttempt(ctx, history.Attempt{
		SpecID: "APP-NAME-001", Attempt: 1, Class: models.ClassSuccess,
		StartedAt: now, FinishedAt: now,
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	got, err := st.AttemptsFor(ctx, "APP-NAME-001")
	if err != nil {
		t.Fatalf("AttemptsFor: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("want at least one attempt")
	}
}
