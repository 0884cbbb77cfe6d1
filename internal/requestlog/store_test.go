package requestlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteWriter_WriteAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	now := time.Now().UTC()
	entries := []Entry{
		{
			TraceID:     "trace-1",
			Stage:       "before_request",
			Endpoint:    "simulate",
			Service:     "obstruction",
			WindowCount: 3,
			CreatedAt:   now.Add(-2 * time.Hour),
		},
		{
			TraceID:     "trace-2",
			Stage:       "after_request",
			Endpoint:    "simulate",
			Service:     "merger",
			WindowCount: 3,
			CreatedAt:   now.Add(-1 * time.Hour),
		},
		{
			TraceID:      "trace-3",
			Stage:        "on_error",
			Endpoint:     "obstruction_all",
			Service:      "obstruction",
			WindowCount:  5,
			ErrorMessage: "downstream timeout",
			CreatedAt:    now,
		},
	}

	for _, entry := range entries {
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write request log entry: %v", err)
		}
	}

	result, err := w.List(context.Background(), Query{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if result.Total != 3 || len(result.Data) != 3 {
		t.Fatalf("expected 3 logs, total=%d len=%d", result.Total, len(result.Data))
	}

	filtered, err := w.List(context.Background(), Query{Limit: 10, Offset: 0, Stage: "on_error"})
	if err != nil {
		t.Fatalf("list filtered logs: %v", err)
	}
	if filtered.Total != 1 || len(filtered.Data) != 1 {
		t.Fatalf("expected 1 on_error log, total=%d len=%d", filtered.Total, len(filtered.Data))
	}
	if filtered.Data[0].TraceID != "trace-3" {
		t.Fatalf("unexpected filtered trace id: %s", filtered.Data[0].TraceID)
	}

	byEndpoint, err := w.List(context.Background(), Query{Limit: 10, Endpoint: "simulate"})
	if err != nil {
		t.Fatalf("list by endpoint: %v", err)
	}
	if byEndpoint.Total != 2 {
		t.Fatalf("expected 2 simulate logs, got %d", byEndpoint.Total)
	}

	sinceFiltered, err := w.List(context.Background(), Query{Limit: 10, Since: ptrTime(now.Add(-30 * time.Minute))})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if sinceFiltered.Total != 1 || sinceFiltered.Data[0].TraceID != "trace-3" {
		t.Fatalf("expected only trace-3 since cutoff, got total=%d", sinceFiltered.Total)
	}
}

func TestSQLiteWriter_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	now := time.Now().UTC()
	entries := []Entry{
		{Stage: "before_request", Endpoint: "simulate", Service: "obstruction", WindowCount: 1, CreatedAt: now.Add(-3 * time.Hour)},
		{Stage: "after_request", Endpoint: "simulate", Service: "merger", WindowCount: 1, CreatedAt: now.Add(-2 * time.Hour)},
		{Stage: "after_request", Endpoint: "simulate", Service: "merger", WindowCount: 1, CreatedAt: now},
	}
	for _, entry := range entries {
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write request log entry: %v", err)
		}
	}

	cutoff := now.Add(-1 * time.Hour)
	deleted, err := w.Delete(context.Background(), MaintenanceQuery{Before: &cutoff})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted rows, got %d", deleted)
	}

	result, err := w.List(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected 1 remaining log, got %d", result.Total)
	}

	if _, err := w.Delete(context.Background(), MaintenanceQuery{}); err == nil {
		t.Fatal("expected error when Before is nil")
	}
}

func TestPostgresWriterContract(t *testing.T) {
	dsn := os.Getenv("LUXGW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set LUXGW_TEST_POSTGRES_DSN to run Postgres requestlog integration tests")
	}

	w, err := NewPostgresWriter(dsn)
	if err != nil {
		t.Fatalf("new postgres writer: %v", err)
	}
	t.Cleanup(func() {
		_, _ = w.db.Exec("DELETE FROM request_logs")
		_ = w.Close()
	})

	_, _ = w.db.Exec("DELETE FROM request_logs")

	entry := Entry{
		TraceID:     "pg-trace",
		Stage:       "after_request",
		Endpoint:    "simulate",
		Service:     "model",
		WindowCount: 2,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.Write(context.Background(), entry); err != nil {
		t.Fatalf("write postgres log: %v", err)
	}

	result, err := w.List(context.Background(), Query{Limit: 10, Offset: 0, Endpoint: "simulate"})
	if err != nil {
		t.Fatalf("list postgres logs: %v", err)
	}
	if result.Total != 1 || len(result.Data) != 1 {
		t.Fatalf("expected 1 postgres log, total=%d len=%d", result.Total, len(result.Data))
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
