package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PauloBoaventura/lightly/internal/journal"
)

var listFiles bool

func newJournalCmd() *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage upload journals",
		Long:  "Inspect the journals written by resumable image uploads",
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Inspect an upload journal",
		Long:  "Display detailed information about an upload journal",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectJournal,
	}
	inspectCmd.Flags().BoolVar(&listFiles, "files", false, "List every completed file")

	journalCmd.AddCommand(inspectCmd)
	return journalCmd
}

func inspectJournal(cmd *cobra.Command, args []string) error {
	path := args[0]

	j, err := journal.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Upload Journal: %s\n", path)
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Session ID:          %s\n", j.SessionID)
	fmt.Fprintf(out, "Created At:          %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Last Saved At:       %s\n", j.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Dataset ID:          %s\n", j.DatasetID)
	fmt.Fprintf(out, "Upload Mode:         %s\n", j.Mode)
	fmt.Fprintln(out)

	complete := j.Stats.Total > 0 && j.Stats.Uploaded+j.Stats.Skipped >= j.Stats.Total
	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Status:            %s\n", statusStr(complete))
	fmt.Fprintf(out, "  Completed Files:   %d / %d (%.1f%%)\n",
		len(j.Completed), j.Stats.Total, journal.ProgressPercentage(j, j.Stats.Total))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Statistics:")
	fmt.Fprintf(out, "  Uploaded:          %d\n", j.Stats.Uploaded)
	fmt.Fprintf(out, "  Skipped:           %d\n", j.Stats.Skipped)
	fmt.Fprintf(out, "  Failed:            %d\n", j.Stats.Failed)
	fmt.Fprintf(out, "  Bytes Uploaded:    %d\n", j.Stats.BytesUploaded)
	fmt.Fprintln(out)

	if listFiles {
		names := make([]string, 0, len(j.Completed))
		for name := range j.Completed {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "Completed Files:")
		for _, name := range names {
			fmt.Fprintln(out, indent(name))
		}
		fmt.Fprintln(out)
	}

	if !complete {
		fmt.Fprintln(out, "To resume this upload, run:")
		fmt.Fprintf(out, "  lightly-upload input_dir=<dir> dataset_id=%s upload=%s journal=%s\n", j.DatasetID, j.Mode, path)
	} else {
		fmt.Fprintln(out, "This upload is complete.")
	}
	return nil
}

func statusStr(done bool) string {
	if done {
		return "✓ Complete"
	}
	return "✗ Incomplete"
}

func indent(s string) string {
	return "  " + strings.TrimSpace(s)
}
