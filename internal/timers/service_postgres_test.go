package timers

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var timerRowColumns = []string{"id", "user_id", "description", "started_at", "is_active", "ended_at"}

func newMockPGService(t *testing.T) (*PGService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc, err := NewPGService(db)
	if err != nil {
		t.Fatalf("NewPGService() error: %v", err)
	}
	return svc, mock
}

func TestNewPGServiceRequiresDB(t *testing.T) {
	if _, err := NewPGService(nil); err == nil {
		t.Fatalf("expected error for nil database")
	}
}

func TestPGServiceCreate(t *testing.T) {
	svc, mock := newMockPGService(t)
	now := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	svc.nowFunc = fixedClock(now)

	mock.ExpectExec("INSERT INTO timers").
		WithArgs(sqlmock.AnyArg(), "u1", "Write report", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tm, err := svc.Create(context.Background(), "u1", " Write report ")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if !tm.IsActive || tm.Description != "Write report" || !tm.Start.Equal(now) {
		t.Fatalf("unexpected timer: %+v", tm)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPGServiceCreateRejectsBlankDescription(t *testing.T) {
	svc, mock := newMockPGService(t)
	if _, err := svc.Create(context.Background(), "u1", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database calls: %v", err)
	}
}

func TestPGServiceList(t *testing.T) {
	svc, mock := newMockPGService(t)
	start := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery("SELECT id, user_id, description, started_at, is_active, ended_at FROM timers WHERE user_id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(timerRowColumns).
			AddRow("1", "u1", "Done", start, false, end).
			AddRow("2", "u1", "Running", start.Add(2*time.Hour), true, nil))

	list, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(list))
	}
	if list[0].End == nil || !list[0].End.Equal(end) || list[0].IsActive {
		t.Fatalf("unexpected stopped row: %+v", list[0])
	}
	if list[1].End != nil || !list[1].IsActive {
		t.Fatalf("unexpected active row: %+v", list[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPGServiceListEmpty(t *testing.T) {
	svc, mock := newMockPGService(t)
	mock.ExpectQuery("SELECT (.+) FROM timers").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(timerRowColumns))

	list, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", list)
	}
}

func TestPGServiceStop(t *testing.T) {
	svc, mock := newMockPGService(t)
	start := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)
	svc.nowFunc = fixedClock(now)

	mock.ExpectQuery("UPDATE timers").
		WithArgs("42", "u1", now).
		WillReturnRows(sqlmock.NewRows(timerRowColumns).AddRow("42", "u1", "Task", start, false, now))

	tm, err := svc.Stop(context.Background(), "u1", "42")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if tm.IsActive || tm.Duration() != 10*time.Minute {
		t.Fatalf("unexpected stopped timer: %+v", tm)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPGServiceStopAlreadyStopped(t *testing.T) {
	svc, mock := newMockPGService(t)
	start := time.Date(2026, 2, 16, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	mock.ExpectQuery("UPDATE timers").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM timers WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("42", "u1").
		WillReturnRows(sqlmock.NewRows(timerRowColumns).AddRow("42", "u1", "Task", start, false, end))

	tm, err := svc.Stop(context.Background(), "u1", "42")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if tm.End == nil || !tm.End.Equal(end) {
		t.Fatalf("expected stored end %s, got %+v", end, tm.End)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPGServiceStopNotFound(t *testing.T) {
	svc, mock := newMockPGService(t)

	mock.ExpectQuery("UPDATE timers").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM timers").WillReturnError(sql.ErrNoRows)

	if _, err := svc.Stop(context.Background(), "u2", "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestPGServiceStopPropagatesErrors(t *testing.T) {
	svc, mock := newMockPGService(t)
	mock.ExpectQuery("UPDATE timers").WillReturnError(errors.New("connection refused"))

	_, err := svc.Stop(context.Background(), "u1", "42")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}
