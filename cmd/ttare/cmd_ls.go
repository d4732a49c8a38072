package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ttare/ttare/internal/archive"
	"github.com/ttare/ttare/internal/errors"
	"github.com/ttare/ttare/internal/ui"
	"github.com/ttare/ttare/internal/ui/table"
)

func newLsCommand() *cobra.Command {
	var opts LsOptions

	cmd := &cobra.Command{
		Use:   "ls [flags] ARCHIVE",
		Short: "List archive members",
		Long: `
The "ls" command lists the members of an archive without extracting anything,
descending into the compressed member group. Every member is marked with its
storage class: "store" for members kept uncompressed, "compress" for members
of the compressed group.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
`,
		GroupID:           cmdGroupDefault,
		DisableAutoGenTag: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return runLs(opts, globalOptions, args)
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

// LsOptions collects all options for the ls command.
type LsOptions struct {
	ListLong bool
}

func (opts *LsOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVarP(&opts.ListLong, "long", "l", false, "use a long listing format showing mode, size and mtime")
}

type lsPrinter interface {
	entry(e archive.Entry)
	close() error
}

type jsonLsPrinter struct {
	enc *json.Encoder
}

func (p *jsonLsPrinter) entry(e archive.Entry) {
	err := p.enc.Encode(struct {
		MessageType  string    `json:"message_type"` // "entry"
		Path         string    `json:"path"`
		Size         int64     `json:"size"`
		Permissions  string    `json:"permissions"`
		ModTime      time.Time `json:"mtime"`
		StorageClass string    `json:"storage_class"`
	}{
		MessageType:  "entry",
		Path:         e.Path,
		Size:         e.Size,
		Permissions:  e.Mode.String(),
		ModTime:      e.ModTime,
		StorageClass: e.Decision.String(),
	})
	if err != nil {
		Warnf("JSON encode failed: %v\n", err)
	}
}

func (p *jsonLsPrinter) close() error { return nil }

type textLsPrinter struct {
	long bool
	tab  *table.Table

	members uint
	bytes   uint64
}

func (p *textLsPrinter) entry(e archive.Entry) {
	if !p.long {
		Printf("%-8v %v\n", e.Decision, ui.Quote(e.Path))
		return
	}

	if p.tab == nil {
		p.tab = table.New()
		p.tab.AddColumn("Class", "{{ .Class }}")
		p.tab.AddColumn("Mode", "{{ .Mode }}")
		p.tab.AddColumn("Size", "{{ .Size }}")
		p.tab.AddColumn("ModTime", "{{ .ModTime }}")
		p.tab.AddColumn("Name", "{{ .Name }}")
	}

	p.tab.AddRow(struct {
		Class, Mode, Size, ModTime, Name string
	}{
		Class:   e.Decision.String(),
		Mode:    e.Mode.String(),
		Size:    strconv.FormatInt(e.Size, 10),
		ModTime: e.ModTime.Local().Format(TimeFormat),
		Name:    ui.Quote(e.Path),
	})

	p.members++
	p.bytes += uint64(e.Size)
}

func (p *textLsPrinter) close() error {
	if p.tab != nil {
		p.tab.AddFooter(fmt.Sprintf("%d members, %v", p.members, ui.FormatBytes(p.bytes)))
		return p.tab.Write(globalOptions.stdout)
	}
	return nil
}

func runLs(opts LsOptions, gopts GlobalOptions, args []string) error {
	if len(args) != 1 {
		return errors.Fatal("the ls command expects a single archive file")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return errors.WithStack(err)
	}

	entries, err := archive.List(f)
	closeErr := f.Close()
	if err != nil {
		return errors.Wrapf(err, "listing %v failed", args[0])
	}
	if closeErr != nil {
		return errors.WithStack(closeErr)
	}

	var printer lsPrinter
	if gopts.JSON {
		printer = &jsonLsPrinter{enc: json.NewEncoder(gopts.stdout)}
	} else {
		printer = &textLsPrinter{long: opts.ListLong}
	}

	for _, e := range entries {
		printer.entry(e)
	}
	return printer.close()
}
