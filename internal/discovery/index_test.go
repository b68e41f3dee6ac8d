package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestIndexListByProjectQueriesExpectedSQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	idx := &Index{db: db}

	mtime := time.Now().Unix()
	mock.ExpectQuery("SELECT session_id, project, project_path, mod_time, name, description").
		WithArgs("my-project").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "project", "project_path", "mod_time", "name", "description"}).
			AddRow("sess-1", "my-project", "/tmp/my-project", mtime, "first session", ""))

	sessions, err := idx.ListByProject(context.Background(), "my-project")
	if err != nil {
		t.Fatalf("list_by_project: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "sess-1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexSyncReplacesContents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	idx := &Index{db: db}

	root := t.TempDir()
	writeSessionFixture(t, root, "-tmp-proj", "sess-1", nil, time.Now())
	scanner := NewScanner(root)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := idx.Sync(context.Background(), scanner)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 synced session, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
