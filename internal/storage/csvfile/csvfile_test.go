package csvfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"declpipe/internal/schema"
	"declpipe/internal/storage"
	"declpipe/pkg/records"
)

var (
	testSchema = schema.Schema{
		{Name: "id", Type: "int"},
		{Name: "amount", Type: "float"},
		{Name: "note", Type: "string"},
	}
	testRows = []records.Record{
		{"id": int64(1), "amount": 10.5, "note": "a"},
		{"id": int64(2), "amount": 7.0, "note": nil},
	}
)

func TestWrite_Overwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := newSink(storage.Config{Target: path})
	if err != nil {
		t.Fatalf("newSink: %v", err)
	}
	defer s.Close()

	n, err := s.Write(context.Background(), testSchema, testRows, storage.ModeOverwrite)
	if err != nil || n != 2 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := "id,amount,note\n1,10.5,a\n2,7,\n"
	if string(first) != want {
		t.Fatalf("contents = %q want %q", first, want)
	}

	// Overwrite twice, same bytes: rerunning the pipeline is idempotent.
	if _, err := s.Write(context.Background(), testSchema, testRows, storage.ModeOverwrite); err != nil {
		t.Fatalf("second write: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(second) != string(first) {
		t.Fatalf("overwrite not idempotent:\n%q\n%q", first, second)
	}
}

func TestWrite_AppendHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := newSink(storage.Config{Target: path})
	if err != nil {
		t.Fatalf("newSink: %v", err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		if _, err := s.Write(context.Background(), testSchema, testRows[:1], storage.ModeAppend); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "id,amount,note\n1,10.5,a\n1,10.5,a\n"
	if string(data) != want {
		t.Fatalf("contents = %q want %q", data, want)
	}
}

func TestWrite_DelimiterAndNoHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := newSink(storage.Config{
		Target: path,
		Params: map[string]any{"delimiter": ";", "header": false},
	})
	if err != nil {
		t.Fatalf("newSink: %v", err)
	}
	defer s.Close()

	if _, err := s.Write(context.Background(), testSchema, testRows[:1], storage.ModeOverwrite); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "1;10.5;a\n" {
		t.Fatalf("contents = %q", data)
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{int64(42), "42"},
		{3.140, "3.14"},
		{true, "true"},
		{"x", "x"},
	}
	for _, c := range cases {
		if got := formatValue(c.in); got != c.want {
			t.Fatalf("formatValue(%v) = %q want %q", c.in, got, c.want)
		}
	}
}
