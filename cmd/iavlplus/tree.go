package main

import (
	"fmt"

	clog "cosmossdk.io/log"
	"github.com/spf13/cobra"

	"iavlplus/codec"
	"iavlplus/kvstore"
	"iavlplus/tree"
)

func treeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "debug tooling for inspecting a backing store",
	}
	cmd.AddCommand(treeDotCommand())
	cmd.AddCommand(treeGetCommand())
	return cmd
}

func treeDotCommand() *cobra.Command {
	var (
		dbDir   string
		version int64
		backend string
	)
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "render a version's tree shape as a Graphviz graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := kvstore.OpenBackend(backend, "iavlplus", dbDir)
			if err != nil {
				return err
			}
			engine := kvstore.NewCosmosDBEngine(db)
			defer engine.Close()

			t, err := tree.New(engine, codec.RawCodec{}, clog.NewNopLogger())
			if err != nil {
				return err
			}
			if err := t.LoadVersion(version); err != nil {
				return err
			}
			var out string
			err = t.Store().Transaction(func() error {
				var graphErr error
				out, graphErr = tree.DotGraph(t.Loader(), t.Root())
				return graphErr
			})
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbDir, "db-dir", "", "directory of the backing key/value engine")
	cmd.Flags().Int64Var(&version, "version", 0, "version to render")
	cmd.Flags().StringVar(&backend, "backend", kvstore.BackendGoLevelDB, "key/value backend: goleveldb or pebbledb")
	cmd.MarkFlagRequired("db-dir")
	cmd.MarkFlagRequired("version")
	return cmd
}

func treeGetCommand() *cobra.Command {
	var (
		dbDir   string
		version int64
		backend string
		key     string
	)
	cmd := &cobra.Command{
		Use:   "get",
		Short: "look up a key's value in a given version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := kvstore.OpenBackend(backend, "iavlplus", dbDir)
			if err != nil {
				return err
			}
			engine := kvstore.NewCosmosDBEngine(db)
			defer engine.Close()

			t, err := tree.New(engine, codec.RawCodec{}, clog.NewNopLogger())
			if err != nil {
				return err
			}
			if err := t.LoadVersion(version); err != nil {
				return err
			}
			var (
				value []byte
				found bool
			)
			err = t.Store().Transaction(func() error {
				var getErr error
				value, found, getErr = t.Get([]byte(key))
				return getErr
			})
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("%q not found at version %d\n", key, version)
				return nil
			}
			fmt.Printf("%x\n", value)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbDir, "db-dir", "", "directory of the backing key/value engine")
	cmd.Flags().Int64Var(&version, "version", 0, "version to query")
	cmd.Flags().StringVar(&backend, "backend", kvstore.BackendGoLevelDB, "key/value backend: goleveldb or pebbledb")
	cmd.Flags().StringVar(&key, "key", "", "key to look up")
	cmd.MarkFlagRequired("db-dir")
	cmd.MarkFlagRequired("version")
	cmd.MarkFlagRequired("key")
	return cmd
}
