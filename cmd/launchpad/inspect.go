package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/detector"
	"launchpad-deployment/internal/models"
	"launchpad-deployment/internal/packager"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect <path>",
	Short: "Print the framework detection result for a directory or zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := detector.New().Detect(args[0])
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var packageCmd = &cobra.Command{
	Use:   "package <path>",
	Short: "List the files that would be uploaded for a directory or zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		detection := detector.New().Detect(source)
		subject := &models.Subject{
			Name:       filepath.Base(source),
			SourcePath: source,
			Framework:  detection.Category,
		}

		logs := deploylog.NewMemoryStore(nil)
		files, err := packager.New().Package(subject, deploylog.NewRecorder(logs, subject.ID))

		out := cmd.OutOrStdout()
		for _, entry := range logs.List(subject.ID) {
			fmt.Fprintf(out, "[%s] %s\n", entry.Level, entry.Message)
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tENCODING\tSIZE")
		for _, f := range files {
			encoding := f.Encoding
			if encoding == "" {
				encoding = "utf-8"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Path, encoding, len(f.Data))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d files, framework %s\n", len(files), detection.FrameworkName())
		return nil
	},
}
