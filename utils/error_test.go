package utils

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !IsDuplicateKeyErr(dup) {
		t.Fatal("expected 1062 to be reported as duplicate key")
	}
	if !IsDuplicateKeyErr(fmt.Errorf("insert failed: %w", dup)) {
		t.Fatal("expected wrapped 1062 to be reported as duplicate key")
	}
	if IsDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213, Message: "Deadlock found"}) {
		t.Fatal("non-1062 mysql error reported as duplicate key")
	}
	if IsDuplicateKeyErr(errors.New("duplicate entry")) {
		t.Fatal("plain error reported as duplicate key")
	}
	if IsDuplicateKeyErr(nil) {
		t.Fatal("nil reported as duplicate key")
	}
}
