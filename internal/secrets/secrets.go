// Package secrets stores and resolves credentials for the remote worker
// farm and remote cache backends (spec §6, supplemented per SPEC_FULL.md
// §12): the farm dispatch and remote-cache clients never see the ways a
// credential is supplied, only the resolved secret string. Adapted from
// the teacher's vault package: OS keychain as the primary store, with an
// environment-variable and key-reference fallback for headless CI use.
//
// Farm and remote-cache endpoints hold credentials of different shapes.
// A farm endpoint authenticates worker dispatch with a single bearer
// token. A remote-cache endpoint speaks an S3-style object API and needs
// an access-key/secret-key pair, so its credential is stored as
// "accessKey:secretKey" and split by CachePair instead of returned as a
// single opaque string.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "buildcore"

// knownEndpoints is the list of endpoint names checked by List().
var knownEndpoints = []string{"farm", "remote-cache"}

// Store provides credential storage for farm and remote-cache endpoints
// using the OS keychain, with fallback to environment variables.
type Store struct{}

// New creates a Store backed by the OS keychain.
func New() *Store {
	return &Store{}
}

// Set stores the credential for the given endpoint name in the OS
// keychain.
func (s *Store) Set(endpoint, credential string) error {
	return keyring.Set(serviceName, endpoint, credential)
}

// Get retrieves the credential for endpoint. It checks the OS keychain
// first, then falls back to the environment variable
// BUILDCORE_SECRET_{UPPER(endpoint)}.
func (s *Store) Get(endpoint string) (string, error) {
	secret, err := keyring.Get(serviceName, endpoint)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := "BUILDCORE_SECRET_" + strings.ToUpper(strings.ReplaceAll(endpoint, "-", "_"))
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no credential found for endpoint %q: not in keychain and %s not set", endpoint, envKey)
}

// CachePair holds the access-key/secret-key pair a remote-cache endpoint's
// S3-style object API authenticates with.
type CachePair struct {
	AccessKey string
	SecretKey string
}

// GetCachePair retrieves and splits the "accessKey:secretKey" credential
// stored for a remote-cache endpoint. Unlike the farm's single bearer
// token, a remote-cache credential is a pair, so it is rejected outright
// if it doesn't contain the separator rather than handed to the client
// as one opaque half of a pair.
func (s *Store) GetCachePair(endpoint string) (CachePair, error) {
	raw, err := s.Get(endpoint)
	if err != nil {
		return CachePair{}, err
	}

	accessKey, secretKey, ok := strings.Cut(raw, ":")
	if !ok || accessKey == "" || secretKey == "" {
		return CachePair{}, fmt.Errorf("credential for endpoint %q is not a valid remote-cache pair (expected \"accessKey:secretKey\")", endpoint)
	}
	return CachePair{AccessKey: accessKey, SecretKey: secretKey}, nil
}

// Delete removes the credential for endpoint from the OS keychain.
func (s *Store) Delete(endpoint string) error {
	return keyring.Delete(serviceName, endpoint)
}

// List returns the names of known endpoints that currently have a
// credential available, checking both the keychain and environment
// variables.
func (s *Store) List() ([]string, error) {
	var endpoints []string

	for _, endpoint := range knownEndpoints {
		if secret, err := keyring.Get(serviceName, endpoint); err == nil && secret != "" {
			endpoints = append(endpoints, endpoint)
			continue
		}
		envKey := "BUILDCORE_SECRET_" + strings.ToUpper(strings.ReplaceAll(endpoint, "-", "_"))
		if val := os.Getenv(envKey); val != "" {
			endpoints = append(endpoints, endpoint)
		}
	}

	return endpoints, nil
}

// Resolve parses a credential reference and retrieves the secret it
// points to. Supported formats:
//   - "keyring://buildcore/<endpoint>" (preferred)
//   - "keychain:buildcore/<endpoint>" (legacy, carried forward from the
//     teacher's tokenman vault for configs migrated from it)
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/secret"
func (s *Store) Resolve(ref string) (string, error) {
	if strings.HasPrefix(ref, "keyring://") {
		path := strings.TrimPrefix(ref, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid credential reference: %q (expected \"keyring://buildcore/<endpoint>\")", ref)
		}
		return s.Get(parts[1])
	}

	if strings.HasPrefix(ref, "keychain:") {
		path := strings.TrimPrefix(ref, "keychain:")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid credential reference path: %q (expected \"buildcore/<endpoint>\")", path)
		}
		return s.Get(parts[1])
	}

	if strings.HasPrefix(ref, "env:") {
		envVar := strings.TrimPrefix(ref, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)
	}

	if strings.HasPrefix(ref, "file://") {
		filePath := strings.TrimPrefix(ref, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading credential file %q: %w", filePath, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("credential file %q is empty", filePath)
		}
		return secret, nil
	}

	return "", fmt.Errorf("invalid credential reference: %q (expected \"keyring://buildcore/<endpoint>\", \"keychain:buildcore/<endpoint>\", \"env:VARIABLE_NAME\", or \"file:///path/to/secret\")", ref)
}
