package postgres

import (
	"testing"

	"declpipe/internal/schema"
)

func TestCreateStmt(t *testing.T) {
	t.Parallel()

	sch := schema.Schema{
		{Name: "id", Type: "int"},
		{Name: "total", Type: "float"},
		{Name: "paid", Type: "bool"},
		{Name: "customer", Type: "string"},
	}
	want := `CREATE TABLE IF NOT EXISTS "orders" ("id" BIGINT, "total" DOUBLE PRECISION, "paid" BOOLEAN, "customer" TEXT)`
	if got := createStmt("orders", sch); got != want {
		t.Fatalf("create = %q want %q", got, want)
	}
}

func TestPgIdent(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`o"rders`); got != `"o""rders"` {
		t.Fatalf("ident = %q", got)
	}
}
