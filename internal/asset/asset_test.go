package asset

import (
	"io"
	"testing"
)

func TestContentBytesBuffer(t *testing.T) {
	c := NewBufferContent([]byte("hello"))
	if !c.IsBuffer() || c.IsStream() {
		t.Fatal("expected buffer content")
	}
	b, err := c.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}
}

func TestContentStreamReusable(t *testing.T) {
	opens := 0
	c := NewStreamContent("/tmp/x", func() (io.ReadCloser, error) {
		opens++
		return io.NopCloser(newByteReader([]byte("world"))), nil
	})
	if !c.IsStream() {
		t.Fatal("expected stream content")
	}
	b1, err := c.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	b2, err := c.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if string(b1) != "world" || string(b2) != "world" {
		t.Fatalf("unexpected content: %q %q", b1, b2)
	}
	if opens != 2 {
		t.Fatalf("expected stream to be reopened on each Bytes() call, got %d opens", opens)
	}
}

func TestRehashIsPureFunctionOfContent(t *testing.T) {
	a := &Asset{Content: NewBufferContent([]byte("x=1"))}
	if err := a.Rehash(); err != nil {
		t.Fatalf("rehash: %v", err)
	}
	h1 := a.Hash

	a.Content = NewBufferContent([]byte("x=1"))
	if err := a.Rehash(); err != nil {
		t.Fatalf("rehash: %v", err)
	}
	if a.Hash != h1 {
		t.Fatal("expected identical hash for identical content")
	}

	a.Content = NewBufferContent([]byte("x=2"))
	if err := a.Rehash(); err != nil {
		t.Fatalf("rehash: %v", err)
	}
	if a.Hash == h1 {
		t.Fatal("expected different hash for different content")
	}
}

func TestAssetRequestInputIdentityExcludesOptionsRef(t *testing.T) {
	in1 := AssetRequestInput{FilePath: "a.js", Env: Env{Context: "browser"}, OptionsRef: "opts-A"}
	in2 := AssetRequestInput{FilePath: "a.js", Env: Env{Context: "browser"}, OptionsRef: "opts-B"}

	f1, err := in1.IdentityFingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	f2, err := in2.IdentityFingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if f1 != f2 {
		t.Fatal("expected identity to be independent of OptionsRef")
	}
}

func TestAssetRequestInputIDBase(t *testing.T) {
	file := AssetRequestInput{FilePath: "a.js"}
	if file.IDBase() != "a.js" {
		t.Fatalf("expected file path as IDBase, got %q", file.IDBase())
	}

	code := "x=1"
	inline1 := AssetRequestInput{FilePath: "a.js", Code: &code}
	code2 := "x=1"
	inline2 := AssetRequestInput{FilePath: "b.js", Code: &code2}
	if inline1.IDBase() != inline2.IDBase() {
		t.Fatal("expected IDBase to depend on code content, not file path, for inline requests")
	}

	other := "x=2"
	inline3 := AssetRequestInput{FilePath: "a.js", Code: &other}
	if inline1.IDBase() == inline3.IDBase() {
		t.Fatal("expected different inline code to produce different IDBase")
	}
}
