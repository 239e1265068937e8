// Package fingerprint computes deterministic content-derived digests used
// throughout buildcore as opaque equality tokens: request identities, asset
// hashes, and content-addressed storage keys all derive from here.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// StreamBufferThreshold is the maximum number of bytes a caller of
// HashStream (the driver) buffers in memory before falling back to a fresh
// stream on next read. HashStream itself taps every chunk regardless.
// See spec §5 "Buffering policy".
const StreamBufferThreshold = 5 << 20 // 5 MiB

// Fingerprint computes a deterministic digest of an arbitrary structured
// value. Map keys are canonicalized (sorted) before hashing so that field
// order never affects the result; this is done implicitly by encoding/json
// for map[string]T values, but we re-marshal through a canonicalizer to
// guarantee it holds for nested maps of interface{} as well.
func Fingerprint(value interface{}) (string, error) {
	canon, err := canonicalize(value)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal: %w", err)
	}
	return FingerprintString(string(data)), nil
}

// FingerprintString returns the SHA-256 hex digest of s.
func FingerprintString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// FingerprintBytes returns the SHA-256 hex digest of b.
func FingerprintBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// FingerprintFile streams the file at path through the digest without
// loading it fully into memory up front (beyond the streaming buffer used
// internally by the hasher).
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashStream streams bytes from r through a SHA-256 digest, invoking tap
// once per chunk read (before it is discarded) so that callers can buffer
// the chunk and measure size in the same pass. It returns the hex digest
// and the total number of bytes read.
//
// tap may be nil. Chunking uses a fixed 32 KiB read buffer; tap receives
// a slice valid only for the duration of the call and must copy it if it
// needs to retain the data beyond that.
func HashStream(r io.Reader, tap func(chunk []byte)) (digest string, size int64, err error) {
	h := sha256.New()
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			h.Write(chunk)
			size += int64(n)
			if tap != nil {
				tap(chunk)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", size, fmt.Errorf("fingerprint: read stream: %w", rerr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// canonicalize recursively rewrites a value decoded from (or destined for)
// JSON so that map keys are visited in sorted order, guaranteeing a stable
// byte representation across processes and runs. Unordered Go maps are
// replaced by orderedMap, which MarshalJSON renders with sorted keys.
func canonicalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(t))
		for _, k := range keys {
			cv, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, orderedEntry{Key: k, Value: cv})
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			cv, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		// Round-trip non-map/slice Go values (structs, pointers, etc.)
		// through JSON so nested maps inside them are also canonicalized.
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		if _, same := generic.(map[string]interface{}); same {
			return canonicalize(generic)
		}
		if _, same := generic.([]interface{}); same {
			return canonicalize(generic)
		}
		return generic, nil
	}
}

type orderedEntry struct {
	Key   string
	Value interface{}
}

type orderedMap []orderedEntry

// MarshalJSON renders the entries in the order they were appended, which
// canonicalize guarantees is sorted-by-key order.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	var b []byte
	b = append(b, '{')
	for i, e := range m {
		if i > 0 {
			b = append(b, ',')
		}
		keyJSON, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		b = append(b, keyJSON...)
		b = append(b, ':')
		b = append(b, valJSON...)
	}
	b = append(b, '}')
	return b, nil
}
