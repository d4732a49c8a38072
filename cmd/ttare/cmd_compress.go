package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ttare/ttare/internal/archive"
	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/entropy"
	"github.com/ttare/ttare/internal/errors"
	"github.com/ttare/ttare/internal/ui"
)

func newCompressCommand() *cobra.Command {
	var opts CompressOptions

	cmd := &cobra.Command{
		Use:   "compress [flags] FILE ...",
		Short: "Pack files into an entropy-routed archive",
		Long: `
The "compress" command packs the given files into a single archive. For every
file the entropy of a sample of its leading bytes is estimated: files at or
below the threshold are bundled into one gzip-compressed member, files above
it are stored uncompressed, since compressing high-entropy content costs time
for no gain.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		GroupID:           cmdGroupDefault,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(cmd.Context(), opts, globalOptions, args)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// CompressOptions collects all options for the compress command.
type CompressOptions struct {
	OutputFile       string
	SamplePercentage float64
	EntropyThreshold float64
	DryRun           bool
}

func (opts *CompressOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.OutputFile, "output-file", "o", "", "write the archive to `path` (required)")
	f.Float64Var(&opts.SamplePercentage, "sample-percentage", archive.DefaultSampleRatio, "fraction (0..1] of each file's leading bytes sampled for the entropy estimate")
	f.Float64Var(&opts.EntropyThreshold, "entropy-threshold", archive.DefaultThreshold, "entropy in bits per byte (0..8) above which a file is stored uncompressed")
	f.BoolVarP(&opts.DryRun, "dry-run", "n", false, "do not write the archive, just print what would be done")
}

func runCompress(ctx context.Context, opts CompressOptions, gopts GlobalOptions, args []string) error {
	if len(args) == 0 {
		return errors.Fatal("nothing to pack, no files given")
	}
	if opts.OutputFile == "" && !opts.DryRun {
		return errors.Fatal("please specify the archive location (--output-file)")
	}

	cfg := archive.Config{
		SampleRatio: opts.SamplePercentage,
		Threshold:   opts.EntropyThreshold,
	}
	if err := cfg.Validate(); err != nil {
		return errors.Fatalf("invalid configuration: %v", err)
	}

	var printer compressPrinter
	if gopts.JSON {
		printer = &jsonCompressPrinter{
			enc:       json.NewEncoder(gopts.stdout),
			verbosity: gopts.verbosity,
		}
	} else {
		printer = &textCompressPrinter{}
	}

	debug.Log("packing %d files, ratio %v, threshold %v", len(args), cfg.SampleRatio, cfg.Threshold)

	start := time.Now()
	p := archive.NewPacker(cfg)

	summary := compressSummary{DryRun: opts.DryRun, OutputFile: opts.OutputFile}

	for _, path := range args {
		res, err := p.Add(ctx, path)
		if err != nil {
			return err
		}

		printer.file(res)
		summary.InputBytes += uint64(res.Size)
		if res.Decision == entropy.DecisionStore {
			summary.FilesStored++
		} else {
			summary.FilesCompressed++
		}
	}

	if !opts.DryRun {
		data, err := p.Finalize()
		if err != nil {
			return err
		}

		if err := archive.WriteFile(opts.OutputFile, data); err != nil {
			return errors.Wrapf(err, "unable to save %v", opts.OutputFile)
		}

		debug.Log("archive %v saved, %d bytes", opts.OutputFile, len(data))
		summary.ArchiveBytes = uint64(len(data))
	}

	printer.summary(summary, time.Since(start))
	return nil
}

type compressSummary struct {
	DryRun          bool
	FilesStored     uint
	FilesCompressed uint
	InputBytes      uint64
	ArchiveBytes    uint64
	OutputFile      string
}

// compressPrinter reports the decision for each packed file and the final
// summary, either as text or as a JSON stream.
type compressPrinter interface {
	file(res archive.PackResult)
	summary(s compressSummary, d time.Duration)
}

type textCompressPrinter struct{}

func (p *textCompressPrinter) file(res archive.PackResult) {
	Verboseff("%-8v %4.2f bits/byte  %v\n", res.Decision, res.Score, res.Path)
}

func (p *textCompressPrinter) summary(s compressSummary, d time.Duration) {
	Verbosef("\n")
	Verbosef("Files:  %d compressed, %d stored raw\n", s.FilesCompressed, s.FilesStored)
	Verbosef("processed %d files, %v in %v\n",
		s.FilesCompressed+s.FilesStored, ui.FormatBytes(s.InputBytes), ui.FormatDuration(d))

	if s.DryRun {
		Verbosef("dry run, archive was not written\n")
		return
	}

	if ratio := ui.FormatPercent(s.ArchiveBytes, s.InputBytes); ratio != "" {
		Verbosef("archive size is %v (%v of input)\n", ui.FormatBytes(s.ArchiveBytes), ratio)
	} else {
		Verbosef("archive size is %v\n", ui.FormatBytes(s.ArchiveBytes))
	}
	Verbosef("archive %v saved\n", s.OutputFile)
}

type jsonCompressPrinter struct {
	enc       *json.Encoder
	verbosity uint
}

func (p *jsonCompressPrinter) print(status interface{}) {
	if err := p.enc.Encode(status); err != nil {
		Warnf("JSON encode failed: %v\n", err)
	}
}

func (p *jsonCompressPrinter) file(res archive.PackResult) {
	if p.verbosity < 2 {
		return
	}

	p.print(struct {
		MessageType string  `json:"message_type"` // "verbose_status"
		Action      string  `json:"action"`
		Item        string  `json:"item"`
		Size        int64   `json:"size"`
		Entropy     float64 `json:"entropy"`
	}{
		MessageType: "verbose_status",
		Action:      res.Decision.String(),
		Item:        res.Path,
		Size:        res.Size,
		Entropy:     res.Score,
	})
}

func (p *jsonCompressPrinter) summary(s compressSummary, d time.Duration) {
	p.print(struct {
		MessageType         string  `json:"message_type"` // "summary"
		DryRun              bool    `json:"dry_run,omitempty"`
		FilesStored         uint    `json:"files_stored"`
		FilesCompressed     uint    `json:"files_compressed"`
		TotalBytesProcessed uint64  `json:"total_bytes_processed"`
		ArchiveSize         uint64  `json:"archive_size,omitempty"`
		OutputFile          string  `json:"output_file,omitempty"`
		TotalDuration       float64 `json:"total_duration"`
	}{
		MessageType:         "summary",
		DryRun:              s.DryRun,
		FilesStored:         s.FilesStored,
		FilesCompressed:     s.FilesCompressed,
		TotalBytesProcessed: s.InputBytes,
		ArchiveSize:         s.ArchiveBytes,
		OutputFile:          s.OutputFile,
		TotalDuration:       d.Seconds(),
	})
}
