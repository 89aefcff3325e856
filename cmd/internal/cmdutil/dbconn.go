package cmdutil

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/validata-io/validata/connstore"
	"github.com/validata-io/validata/dbconn"
)

type dbConnConfig struct {
	Source   string
	Target   string
	Registry string
}

var dbConnConfigInst = dbConnConfig{
	Registry: defaultRegistryPath(),
}

func defaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "connections.yaml"
	}
	return filepath.Join(home, ".validata", "connections.yaml")
}

func RegisterDBConnFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&dbConnConfigInst.Source,
		"source",
		"",
		"URL of the source database, or a registered connection name",
	)
	cmd.PersistentFlags().StringVar(
		&dbConnConfigInst.Target,
		"target",
		"",
		"URL of the target database, or a registered connection name",
	)
	RegisterRegistryFlags(cmd)

	for _, required := range []string{"source", "target"} {
		if err := cmd.MarkPersistentFlagRequired(required); err != nil {
			panic(err)
		}
	}
}

func RegisterRegistryFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&dbConnConfigInst.Registry,
		"registry",
		dbConnConfigInst.Registry,
		"path of the named connection registry file",
	)
}

func OpenRegistry() (*connstore.Store, error) {
	return connstore.Open(dbConnConfigInst.Registry)
}

// LoadDBConns resolves the source/target flags through the connection
// registry and connects to both.
func LoadDBConns(ctx context.Context) (dbconn.OrderedConns, error) {
	store, err := OpenRegistry()
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	source, err := connect(ctx, store, "source", dbConnConfigInst.Source)
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	target, err := connect(ctx, store, "target", dbConnConfigInst.Target)
	if err != nil {
		return dbconn.OrderedConns{}, err
	}
	return dbconn.OrderedConns{source, target}, nil
}

func connect(
	ctx context.Context, store *connstore.Store, id dbconn.ID, nameOrConn string,
) (dbconn.Conn, error) {
	connStr, err := store.Resolve(nameOrConn)
	if err != nil {
		return nil, err
	}
	return dbconn.Connect(ctx, id, connStr)
}
