// Package cli implements the namereg operator command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "NAMEREG"

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     core.Config
	log     *slog.Logger
}

// NewRootCommand builds the namereg command tree. Each call gets its own
// viper instance, so commands built for tests do not share state.
func NewRootCommand(version string) *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "namereg",
		Short: "Operate a local hierarchical name registry",
		Long: `namereg manages a hierarchical name registry stored on local disk.

Names are addressed by 32-byte namehash digests. Each node has an owner and
may resolve to a target identity. Owners of a node, and by default owners of
any of its ancestors, may register names beneath it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: .namereg/config.yaml)")
	pf.String("dir", "", "registry directory")
	pf.String("as", "", "identity of the caller")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")

	// Bind flags to viper
	_ = a.v.BindPFlag("dir", pf.Lookup("dir"))
	_ = a.v.BindPFlag("as", pf.Lookup("as"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		a.initCmd(),
		a.registerCmd(),
		a.resolveCmd(),
		a.hashCmd(),
		a.rebuildCmd(),
	)
	return root
}

func setDefaults(v *viper.Viper) {
	d := core.Defaults()
	v.SetDefault("dir", d.Dir)
	v.SetDefault("catalog.dir", d.Catalog.Dir)
	v.SetDefault("journal.dir", d.Journal.Dir)
	v.SetDefault("journal.disabled", d.Journal.Disabled)
	v.SetDefault("journal.target_pack_bytes", d.Journal.TargetPackBytes)
	v.SetDefault("transform.name", d.Transform.Name)
	v.SetDefault("transform.zstd_level", d.Transform.ZstdLevel)
	v.SetDefault("limits.max_depth", d.Limits.MaxDepth)
	v.SetDefault("limits.max_identity_len", d.Limits.MaxIdentityLen)
	v.SetDefault("policy.auth_scope", d.Policy.AuthScope)
	v.SetDefault("policy.reject_existing", d.Policy.RejectExisting)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("as", "")
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	setDefaults(a.v)
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	} else {
		a.v.AddConfigPath(".namereg")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("reading config: %w", err)
			}
		}
	}

	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cmd.ErrOrStderr(), a.cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func newLogger(w io.Writer, cfg core.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("%w: log level %q", core.ErrInvalidInput, cfg.Level)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log format %q", core.ErrInvalidInput, cfg.Format)
	}
}

func (a *app) caller() (core.Identity, error) {
	id := a.v.GetString("as")
	if id == "" {
		return "", fmt.Errorf("%w: caller identity required (--as or %s_AS)", core.ErrInvalidInput, envPrefix)
	}
	return core.Identity(id), nil
}

// ExitCode maps an error from Execute to a process exit status. Errors
// with a stable registry code exit with 10 plus that code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if code := registry.CodeOf(err); code != core.CodeInternal {
		return 10 + int(code)
	}
	return 1
}
