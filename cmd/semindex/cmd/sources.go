package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/output"
	"github.com/aman-cerp/semindex/internal/sources"
	"github.com/aman-cerp/semindex/internal/store"
)

func newSourcesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sources",
		Short: "Manage named sets of repositories for query --scope set:<name>",
	}
	c.AddCommand(newSourcesAddCmd())
	c.AddCommand(newSourcesRemoveCmd())
	c.AddCommand(newSourcesListCmd())
	return c
}

func newSourcesAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <path...>",
		Short: "Add one or more repository paths to a named source set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return newUsageError("sources add requires a name and at least one path")
			}
			baseDir := store.DefaultBaseDir()
			reg, err := sources.Load(baseDir)
			if err != nil {
				return err
			}
			reg.Add(args[0], args[1:]...)
			if err := reg.Save(baseDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d path(s) to %q\n", len(args[1:]), args[0])
			return nil
		},
	}
}

func newSourcesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a named source set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return newUsageError("sources remove requires exactly one name")
			}
			baseDir := store.DefaultBaseDir()
			reg, err := sources.Load(baseDir)
			if err != nil {
				return err
			}
			reg.Remove(args[0])
			if err := reg.Save(baseDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", args[0])
			return nil
		},
	}
}

func newSourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List named source sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			baseDir := store.DefaultBaseDir()
			reg, err := sources.Load(baseDir)
			if err != nil {
				return err
			}
			if len(reg) == 0 {
				out.Dim("no source sets registered")
				return nil
			}
			for _, name := range reg.Names() {
				set := reg[name]
				out.Statusf("%s (%d paths)", name, len(set.Paths))
				for _, p := range set.Paths {
					out.Dim("  " + p)
				}
			}
			return nil
		},
	}
}
