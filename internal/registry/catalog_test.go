package registry

import (
	"testing"

	"modelhost/pkg/types"
)

func TestCatalog_LookupAndResolve(t *testing.T) {
	c, err := NewCatalog([]types.RemoteModel{{Name: "Tiny", URL: "https://example.com/files/tiny-int8.onnx"}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, ok := c.Lookup("tiny"); !ok {
		t.Fatalf("lookup should be case-insensitive")
	}
	m, err := c.Resolve("https://example.com/x/other.onnx?sig=1")
	if err != nil {
		t.Fatalf("resolve url: %v", err)
	}
	if m.Name != "other" || FileName(m) != "other.onnx" {
		t.Fatalf("unexpected resolve: %+v file=%s", m, FileName(m))
	}
	if _, err := c.Resolve("missing"); err == nil {
		t.Fatalf("expected error for unknown name")
	}
	tiny, _ := c.Lookup("Tiny")
	if FileName(tiny) != "tiny-int8.onnx" {
		t.Fatalf("file name = %s", FileName(tiny))
	}
}

func TestCatalog_RejectsInvalid(t *testing.T) {
	if _, err := NewCatalog([]types.RemoteModel{{Name: "a", URL: "https://e.com/a.onnx"}, {Name: "A", URL: "https://e.com/b.onnx"}}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewCatalog([]types.RemoteModel{{Name: "a", URL: "ftp//bad"}}); err == nil {
		t.Fatalf("expected url validation error")
	}
}

func TestFileName_FallsBackToName(t *testing.T) {
	if got := FileName(types.RemoteModel{Name: "m", URL: "https://e.com/download?id=3"}); got != "m.onnx" {
		t.Fatalf("got %s", got)
	}
}
