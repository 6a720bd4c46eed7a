// Command iavlplus is the snapshot driver CLI (spec §6): create and apply
// version snapshots against a directory of chunk files, plus a debug tree
// subcommand for inspecting a backing store, in the cobra-driven style
// iavl-v1's main.go and bench's RootCommand use.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iavlplus",
		Short: "IAVL+ snapshot driver",
	}
	snap := &cobra.Command{
		Use:   "snapshot",
		Short: "create or apply a version snapshot",
	}
	snap.AddCommand(snapshotCreateCommand())
	snap.AddCommand(snapshotApplyCommand())
	cmd.AddCommand(snap)
	cmd.AddCommand(treeCommand())
	return cmd
}
