// Package connections implements the `connections` command over the named
// connection registry.
package connections

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/validata-io/validata/cmd/internal/cmdutil"
)

func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Manage the named connection registry.",
		Long:  `Connections manages the registry of named connection strings that validations can reference instead of full URLs.`,
	}
	cmd.AddCommand(listCommand())
	cmd.AddCommand(addCommand())
	cmd.AddCommand(removeCommand())
	cmdutil.RegisterRegistryFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered connections.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			store, err := cmdutil.OpenRegistry()
			if err != nil {
				return err
			}
			entries := store.List()
			if len(entries) == 0 {
				logger.Info().Msg("no connections registered")
				return nil
			}
			for _, entry := range entries {
				logger.Info().
					Str("name", entry.Name).
					Str("connection", entry.ConnStr).
					Msg("registered connection")
			}
			return nil
		},
	}
}

func addCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <connection string>",
		Short: "Register a connection string under a name.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			store, err := cmdutil.OpenRegistry()
			if err != nil {
				return err
			}
			if err := store.Add(args[0], args[1]); err != nil {
				return errors.Wrapf(err, "registering connection %q", args[0])
			}
			logger.Info().Str("name", args[0]).Msg("connection registered")
			return nil
		},
	}
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered connection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			store, err := cmdutil.OpenRegistry()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			logger.Info().Str("name", args[0]).Msg("connection removed")
			return nil
		},
	}
}
