package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDigestFromBytes(t *testing.T) {
	b := make([]byte, DigestSize)
	b[0], b[31] = 0xab, 0xcd

	d, err := DigestFromBytes(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d[0] != 0xab || d[31] != 0xcd {
		t.Errorf("bytes not copied: %s", d)
	}
	b[0] = 0
	if d[0] != 0xab {
		t.Error("digest aliases its input")
	}
	if !strings.HasPrefix(d.String(), "ab") || len(d.String()) != 64 {
		t.Errorf("unexpected hex form %q", d.String())
	}

	for _, n := range []int{0, 1, 31, 33, 64} {
		if _, err := DigestFromBytes(make([]byte, n)); !errors.Is(err, ErrInvalidHashInput) {
			t.Errorf("len %d: expected ErrInvalidHashInput, got %v", n, err)
		}
	}
	if _, err := DigestFromBytes(nil); !errors.Is(err, ErrInvalidHashInput) {
		t.Errorf("nil: expected ErrInvalidHashInput, got %v", err)
	}
}

func TestZeroDigest(t *testing.T) {
	if !ZeroDigest.IsZero() {
		t.Error("ZeroDigest is not zero")
	}
	var d Digest
	d[5] = 1
	if d.IsZero() {
		t.Error("non-zero digest reported zero")
	}
}

func TestTarget(t *testing.T) {
	if NoTarget.IsSet() {
		t.Error("NoTarget is set")
	}
	if id, ok := NoTarget.Get(); ok || id != "" {
		t.Errorf("NoTarget.Get() = %q, %v", id, ok)
	}
	if NoTarget.String() != "<none>" {
		t.Errorf("unexpected NoTarget string %q", NoTarget.String())
	}
	if TargetOf("") != NoTarget {
		t.Error("TargetOf empty identity should be NoTarget")
	}

	tg := TargetOf("GADDR")
	if id, ok := tg.Get(); !ok || id != "GADDR" {
		t.Errorf("Get() = %q, %v", id, ok)
	}
	if tg != TargetOf("GADDR") {
		t.Error("targets with equal identities should compare equal")
	}
	if tg.String() != "GADDR" {
		t.Errorf("unexpected string %q", tg.String())
	}
}

func TestNodeIsRoot(t *testing.T) {
	if !(Node{Owner: "root"}).IsRoot() {
		t.Error("expected root shape")
	}
	var parent Digest
	parent[0] = 1
	if (Node{Owner: "a", Parent: parent, Depth: 1}).IsRoot() {
		t.Error("child reported as root")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		code Code
		name string
	}{
		{nil, CodeInternal, "internal"},
		{ErrInvalidHashInput, CodeInvalidHashInput, "invalid_hash_input"},
		{fmt.Errorf("resolve: %w", ErrNotFound), CodeNotFound, "not_found"},
		{ErrParentNotFound, CodeParentNotFound, "parent_not_found"},
		{fmt.Errorf("%w: walk", ErrNotAuthorized), CodeNotAuthorized, "not_authorized"},
		{ErrAlreadyRegistered, CodeAlreadyRegistered, "already_registered"},
		{ErrAlreadyInitialized, CodeInternal, "internal"},
		{ErrBrokenChain, CodeInternal, "internal"},
		{errors.New("disk on fire"), CodeInternal, "internal"},
	}
	for _, tc := range cases {
		got := CodeOf(tc.err)
		if got != tc.code {
			t.Errorf("CodeOf(%v) = %d, want %d", tc.err, got, tc.code)
		}
		if got.String() != tc.name {
			t.Errorf("Code(%d).String() = %q, want %q", got, got.String(), tc.name)
		}
	}
}

func TestBrokenChainIsCorrupt(t *testing.T) {
	err := fmt.Errorf("walk: %w", ErrBrokenChain)
	if !errors.Is(err, ErrCorrupt) {
		t.Error("ErrBrokenChain should wrap ErrCorrupt")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if err := (Config{}).Validate(); err != nil {
		t.Errorf("zero config should validate, got %v", err)
	}

	cases := map[string]func(*Config){
		"Transform":     func(c *Config) { c.Transform.Name = "gzip" },
		"AuthScope":     func(c *Config) { c.Policy.AuthScope = "siblings" },
		"NegativeDepth": func(c *Config) { c.Limits.MaxDepth = -1 },
		"HugeDepth":     func(c *Config) { c.Limits.MaxDepth = 1 << 16 },
		"NegativeIdLen": func(c *Config) { c.Limits.MaxIdentityLen = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
