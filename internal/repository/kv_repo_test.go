package repository

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestKV_Get_Absent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewKVSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectKVSQL)).
		WithArgs("smokehouse", "wifi_ssid").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, ok, err := repo.Get(ctx(t), "smokehouse", "wifi_ssid")
	if err != nil || ok || v != "" {
		t.Fatalf("Get() = %q, %v, %v; want \"\", false, nil", v, ok, err)
	}
}

func TestKV_Get_Present(t *testing.T) {
	db, mock := newMock(t)
	repo := NewKVSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectKVSQL)).
		WithArgs("sensor_config", "chamber_idx").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("1"))

	v, ok, err := repo.Get(ctx(t), "sensor_config", "chamber_idx")
	if err != nil || !ok || v != "1" {
		t.Fatalf("Get() = %q, %v, %v", v, ok, err)
	}
}

func TestKV_SetMany_SingleTransactionSortedKeys(t *testing.T) {
	db, mock := newMock(t)
	repo := NewKVSQLite(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("smokehouse", "auth_pass", "secret", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("smokehouse", "auth_user", "op", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SetMany(ctx(t), "smokehouse", map[string]string{"auth_user": "op", "auth_pass": "secret"})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestKV_SetMany_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewKVSQLite(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("smokehouse", "manual_fan", "1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("smokehouse", "manual_pow", "2", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SetMany(ctx(t), "smokehouse", map[string]string{"manual_fan": "1", "manual_pow": "2"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestKV_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewKVSQLite(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteKVSQL)).WithArgs("smokehouse", "auth_user").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteKVSQL)).WithArgs("smokehouse", "auth_pass").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.Delete(ctx(t), "smokehouse", "auth_user", "auth_pass"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
