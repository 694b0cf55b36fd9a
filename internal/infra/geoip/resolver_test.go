package geoip

import (
	"errors"
	"path/filepath"
	"testing"
)

type staticResolver string

func (s staticResolver) CountryCode(string) (string, error) { return string(s), nil }

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver for empty path")
	}
	if Lookup(r) != nil {
		t.Fatalf("expected nil lookup for nil resolver")
	}
}

func TestNewResolverMissingFile(t *testing.T) {
	_, err := NewResolver(filepath.Join(t.TempDir(), "missing.mmdb"))
	if err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestNilResolverUnavailable(t *testing.T) {
	var r *Resolver
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

func TestPublicIP(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "::1", "fe80::1"} {
		if _, err := publicIP(ip); !errors.Is(err, ErrNonPublicIP) {
			t.Fatalf("publicIP(%q) err = %v, want ErrNonPublicIP", ip, err)
		}
	}
	if _, err := publicIP("not-an-ip"); err == nil || errors.Is(err, ErrNonPublicIP) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := publicIP("203.0.113.7"); err != nil {
		t.Fatalf("publicIP(documentation range) err = %v", err)
	}
}

func TestLookupWrapsResolver(t *testing.T) {
	fn := Lookup(staticResolver("ID"))
	if fn == nil {
		t.Fatalf("expected lookup func")
	}
	got, err := fn("203.0.113.7")
	if err != nil || got != "ID" {
		t.Fatalf("lookup = %q, %v", got, err)
	}
}
