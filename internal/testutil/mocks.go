package testutil

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"starflow/internal/warehouse"
)

// NewMockDB returns a connected warehouse service backed by sqlmock. The
// expectations are checked when the test ends.
func NewMockDB(t *testing.T) (*warehouse.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("Unmet SQL expectations: %v", err)
		}
		db.Close()
	})

	svc := warehouse.NewServiceWithDB(db, warehouse.Config{Driver: warehouse.DriverRedshift})
	return svc, mock
}

// ExpectCommitted registers one statement run in its own transaction, the
// way warehouse.Service.ExecStatements executes it.
func ExpectCommitted(mock sqlmock.Sqlmock, pattern string) {
	mock.ExpectBegin()
	mock.ExpectExec(pattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// ExpectCount registers a scalar count query.
func ExpectCount(mock sqlmock.Sqlmock, pattern string, n int64) {
	mock.ExpectQuery(pattern).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}
