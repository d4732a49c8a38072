package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ttare/ttare/internal/archive"
	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/errors"
	"github.com/ttare/ttare/internal/ui"
)

func newDecompressCommand() *cobra.Command {
	var opts DecompressOptions

	cmd := &cobra.Command{
		Use:   "decompress [flags] ARCHIVE",
		Short: "Extract all files from an archive",
		Long: `
The "decompress" command extracts all members of an archive into the output
directory, unpacking the compressed member group transparently. Member paths
are restored relative to the output directory; archives whose member paths
are absolute or escape the output directory are rejected.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		GroupID:           cmdGroupDefault,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompress(cmd.Context(), opts, globalOptions, args)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// DecompressOptions collects all options for the decompress command.
type DecompressOptions struct {
	OutputDir string
	Verify    bool
}

func (opts *DecompressOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&opts.OutputDir, "output-dir", "", "extract to `directory` (default: current directory)")
	f.BoolVar(&opts.Verify, "verify", false, "re-read all restored files and verify their contents after extraction")
}

func runDecompress(ctx context.Context, opts DecompressOptions, gopts GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("no archive file given")
	}
	if len(args) != 1 {
		return errors.Fatal("the decompress command expects a single archive file")
	}

	archivePath := args[0]
	destDir := opts.OutputDir
	if destDir == "" {
		destDir = "."
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return errors.WithStack(err)
	}

	Verbosef("restoring %v to %v\n", archivePath, destDir)
	start := time.Now()

	u := archive.NewUnpacker(archive.UnpackOptions{RecordChecksums: opts.Verify})
	names, err := u.Unpack(ctx, f, destDir)
	closeErr := f.Close()
	if err != nil {
		return errors.Wrapf(err, "unpacking %v failed", archivePath)
	}
	if closeErr != nil {
		return errors.WithStack(closeErr)
	}

	for _, name := range names {
		Verboseff("restored %v\n", name)
	}
	debug.Log("restored %d files (%d bytes) from %v", len(names), u.BytesWritten(), archivePath)

	verified := 0
	if opts.Verify {
		Verbosef("verifying files in %v\n", destDir)

		totalErrors := 0
		u.Error = func(_ string, err error) error {
			Warnf("%v\n", err)
			totalErrors++
			return nil
		}

		verified, err = u.VerifyFiles(ctx, destDir)
		if err != nil {
			return err
		}
		if totalErrors > 0 {
			return errors.Fatalf("There were %d errors\n", totalErrors)
		}
		Verbosef("finished verifying %d files in %v\n", verified, destDir)
	}

	if gopts.JSON {
		status := struct {
			MessageType   string  `json:"message_type"` // "summary"
			FilesRestored int     `json:"files_restored"`
			TotalBytes    uint64  `json:"total_bytes"`
			FilesVerified int     `json:"files_verified,omitempty"`
			TotalDuration float64 `json:"total_duration"`
		}{
			MessageType:   "summary",
			FilesRestored: len(names),
			TotalBytes:    u.BytesWritten(),
			FilesVerified: verified,
			TotalDuration: time.Since(start).Seconds(),
		}
		Printf("%s", ui.ToJSONString(status))
	} else {
		Verbosef("Summary: Restored %d files (%v) in %v\n",
			len(names), ui.FormatBytes(u.BytesWritten()), ui.FormatDuration(time.Since(start)))
	}

	return nil
}
