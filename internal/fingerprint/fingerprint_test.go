package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFingerprintDeterministicAcrossKeyOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"y": 1, "x": 2}}
	b := map[string]interface{}{"c": map[string]interface{}{"x": 2, "y": 1}, "a": 2, "b": 1}

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if fa != fb {
		t.Fatalf("expected identical fingerprints regardless of map key order, got %s vs %s", fa, fb)
	}
}

func TestFingerprintDiffersOnContentChange(t *testing.T) {
	fa, _ := Fingerprint(map[string]interface{}{"a": 1})
	fb, _ := Fingerprint(map[string]interface{}{"a": 2})
	if fa == fb {
		t.Fatal("expected different fingerprints for different content")
	}
}

func TestFingerprintStructsRoundTrip(t *testing.T) {
	type Inner struct {
		Z int `json:"z"`
		A int `json:"a"`
	}
	type Outer struct {
		Name  string `json:"name"`
		Inner Inner  `json:"inner"`
	}
	v1 := Outer{Name: "x", Inner: Inner{Z: 1, A: 2}}
	f1, err := Fingerprint(v1)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	f2, err := Fingerprint(v1)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if f1 != f2 {
		t.Fatal("expected stable fingerprint across repeated calls")
	}
}

func TestFingerprintStringAndBytesAgree(t *testing.T) {
	s := "hello world"
	if FingerprintString(s) != FingerprintBytes([]byte(s)) {
		t.Fatal("expected FingerprintString and FingerprintBytes to agree on equivalent input")
	}
}

func TestFingerprintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("x=1"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := FingerprintFile(path)
	if err != nil {
		t.Fatalf("fingerprint file: %v", err)
	}
	want := FingerprintString("x=1")
	if got != want {
		t.Fatalf("FingerprintFile = %s, want %s", got, want)
	}
}

func TestHashStreamMatchesDirectHash(t *testing.T) {
	content := strings.Repeat("ab", 100000) // > 32KiB, multiple chunks
	var tapped bytes.Buffer

	digest, size, err := HashStream(strings.NewReader(content), func(chunk []byte) {
		tapped.Write(chunk)
	})
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	if size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", size, len(content))
	}
	if digest != FingerprintString(content) {
		t.Fatalf("digest mismatch: %s vs %s", digest, FingerprintString(content))
	}
	if tapped.String() != content {
		t.Fatal("tap did not observe the full stream content")
	}
}

func TestHashStreamBoundary5MiB(t *testing.T) {
	// Exactly at the buffering threshold.
	exact := bytes.Repeat([]byte{'x'}, StreamBufferThreshold)
	var bufferedExact int64
	_, _, err := HashStream(bytes.NewReader(exact), func(chunk []byte) {
		bufferedExact += int64(len(chunk))
	})
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	if bufferedExact != StreamBufferThreshold {
		t.Fatalf("tapped %d bytes, want exactly %d", bufferedExact, StreamBufferThreshold)
	}

	// One byte over: callers are expected to stop buffering past the
	// threshold themselves (HashStream always taps every chunk; the policy
	// decision belongs to the buffering caller, e.g. the driver).
	over := bytes.Repeat([]byte{'x'}, StreamBufferThreshold+1)
	var bufferedOver int64
	_, _, err = HashStream(bytes.NewReader(over), func(chunk []byte) {
		bufferedOver += int64(len(chunk))
	})
	if err != nil {
		t.Fatalf("hash stream: %v", err)
	}
	if bufferedOver != StreamBufferThreshold+1 {
		t.Fatalf("tapped %d bytes, want %d", bufferedOver, StreamBufferThreshold+1)
	}
}
