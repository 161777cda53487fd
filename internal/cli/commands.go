package cli

import (
	"context"
	"fmt"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/agenthands/namereg/pkg/namehash"
	"github.com/agenthands/namereg/pkg/registry"
	"github.com/spf13/cobra"
)

func (a *app) open(ctx context.Context) (registry.Registry, error) {
	return registry.Open(ctx, a.cfg, registry.WithLogger(a.log))
}

// parseNode accepts a dotted name, a hex digest or a CID. Only "."
// addresses the root; an empty argument is rejected.
func parseNode(arg string) (core.Digest, error) {
	switch arg {
	case "":
		return core.Digest{}, fmt.Errorf("%w: empty name", core.ErrInvalidHashInput)
	case ".":
		return core.ZeroDigest, nil
	}
	if d, err := namehash.ParseDigest(arg); err == nil {
		return d, nil
	}
	return namehash.Namehash(arg)
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the root node, owned by the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Init(cmd.Context(), caller); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized, root owned by %s\n", caller)
			return nil
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var owner, target string

	cmd := &cobra.Command{
		Use:   "register <parent> <label>",
		Short: "Register label under parent",
		Long: `Register label under parent and print the new key.

The parent is a dotted name, a hex digest or a CID; "." is the root.
Registering an existing name replaces its owner and target unless the
policy.reject_existing setting is on.

Examples:
  namereg register . com --owner GOWNER --as GROOT
  namereg register com example --owner GOWNER --target GADDR --as GOWNER`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller()
			if err != nil {
				return err
			}
			parent, err := parseNode(args[0])
			if err != nil {
				return err
			}
			if owner == "" {
				owner = string(caller)
			}

			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			key, err := r.Register(cmd.Context(), caller, parent, namehash.LabelHash(args[1]), core.Identity(owner), core.TargetOf(core.Identity(target)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", key, namehash.CID(key))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the new node (default: the caller)")
	cmd.Flags().StringVar(&target, "target", "", "identity the node resolves to")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name|digest|cid>",
		Short: "Print the target a name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseNode(args[0])
			if err != nil {
				return err
			}
			r, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer r.Close()

			target, err := r.Resolve(cmd.Context(), key[:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
}

func (a *app) hashCmd() *cobra.Command {
	var label bool

	cmd := &cobra.Command{
		Use:   "hash <name>",
		Short: "Print the namehash of a dotted name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d core.Digest
			if label {
				d = namehash.LabelHash(args[0])
			} else {
				var err error
				if d, err = namehash.Namehash(args[0]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", d, namehash.CID(d))
			return nil
		},
	}
	cmd.Flags().BoolVar(&label, "label", false, "hash a single label instead of a dotted name")
	return cmd
}

func (a *app) rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild an empty catalog from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, n, err := registry.Rebuild(cmd.Context(), a.cfg, registry.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d journal events\n", n)
			return nil
		},
	}
}
