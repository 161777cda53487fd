package core

import (
	"fmt"
)

const (
	AuthScopeAncestors = "ancestors"
	AuthScopeParent    = "parent"
)

type Config struct {
	Dir string `mapstructure:"dir"` // registry root

	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Transform TransformConfig `mapstructure:"transform"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Log       LogConfig       `mapstructure:"log"`
}

type CatalogConfig struct {
	Dir string `mapstructure:"dir"`
}

type JournalConfig struct {
	Dir             string `mapstructure:"dir"`
	Disabled        bool   `mapstructure:"disabled"`
	TargetPackBytes uint64 `mapstructure:"target_pack_bytes"`
}

type TransformConfig struct {
	Name      string `mapstructure:"name"` // "none" or "zstd"
	ZstdLevel int    `mapstructure:"zstd_level"`
}

type LimitsConfig struct {
	MaxDepth       int `mapstructure:"max_depth"`
	MaxIdentityLen int `mapstructure:"max_identity_len"`
}

type PolicyConfig struct {
	// AuthScope selects whose ownership authorizes a registration:
	// "ancestors" (any owner on the chain up to root) or "parent".
	AuthScope string `mapstructure:"auth_scope"`

	// RejectExisting makes re-registering an existing (parent, leaf) pair
	// fail with ErrAlreadyRegistered instead of overwriting the node.
	RejectExisting bool `mapstructure:"reject_existing"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Defaults returns the configuration used when a field is left unset.
func Defaults() Config {
	return Config{
		Dir: ".namereg",
		Journal: JournalConfig{
			TargetPackBytes: 4 << 20,
		},
		Transform: TransformConfig{
			Name:      "none",
			ZstdLevel: 3,
		},
		Limits: LimitsConfig{
			MaxDepth:       64,
			MaxIdentityLen: 256,
		},
		Policy: PolicyConfig{
			AuthScope: AuthScopeAncestors,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate rejects settings the registry cannot run with.
func (c Config) Validate() error {
	switch c.Transform.Name {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("%w: unsupported transform %q", ErrInvalidInput, c.Transform.Name)
	}
	switch c.Policy.AuthScope {
	case "", AuthScopeAncestors, AuthScopeParent:
	default:
		return fmt.Errorf("%w: unsupported auth scope %q", ErrInvalidInput, c.Policy.AuthScope)
	}
	if c.Limits.MaxDepth < 0 || c.Limits.MaxDepth > 0xffff {
		return fmt.Errorf("%w: max depth %d out of range", ErrInvalidInput, c.Limits.MaxDepth)
	}
	if c.Limits.MaxIdentityLen < 0 {
		return fmt.Errorf("%w: negative max identity length", ErrInvalidInput)
	}
	return nil
}
