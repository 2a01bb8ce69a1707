// photocopy: template-driven media organizer with crash-safe resume and rollback.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"photocopy/internal/fsys"
	"photocopy/internal/txlog"
)

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <transaction-log>",
		Short: "Undo a run recorded in a transaction log",
		Long: `rollback reverses the operations of a transaction log in reverse
order: copied files are deleted from the destination, moved files are
moved back to their source, and directories the run created are removed
when empty. On success the log is marked RolledBack.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result := txlog.Rollback(context.Background(), fsys.NewOS(), args[0])

			fmt.Printf("Restored: %d, Failed: %d, Directories removed: %d\n",
				result.FilesRestored, result.FilesFailed, result.DirectoriesRemoved)
			for _, e := range result.Errors {
				color.New(color.FgRed).Printf("  %s\n", e)
			}
			if !result.Success {
				color.New(color.FgRed, color.Bold).Println("Rollback finished with errors")
				os.Exit(1)
			}
			color.New(color.FgGreen, color.Bold).Println("Rollback complete")
		},
	}
}

func transactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transactions <directory>",
		Short: "List transaction logs in a destination root",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			listTransactionsFor(args[0])
		},
	}
}
