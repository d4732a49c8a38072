// Package archive implements the ttare container format. A container is a
// tar archive whose members were routed by entropy analysis: files that are
// unlikely to shrink under compression are stored as-is at the top level,
// all other files are collected in an inner tar archive that is
// gzip-compressed and stored as the single reserved member.
package archive

import (
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/ttare/ttare/internal/entropy"
	"github.com/ttare/ttare/internal/errors"
)

// CompressedMemberName is the reserved name of the archive member that holds
// the gzip-compressed inner archive. Input files must not use this name.
const CompressedMemberName = ".ttare.tar.gz"

// compressedMemberMode is the file mode of the reserved member (r--r--r--).
const compressedMemberMode = 0o444

// modeBits covers the mode bits a member records: the permission bits plus
// setuid, setgid and sticky.
const modeBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Default packing parameters.
const (
	// DefaultSampleRatio is the fraction of a file that is read for the
	// entropy estimate.
	DefaultSampleRatio = 0.5
	// DefaultThreshold is the entropy score, in bits per byte, above which
	// a file is stored uncompressed.
	DefaultThreshold = 6.5
)

var (
	// ErrCorruptArchive is returned when an archive violates the container
	// format.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrDecompression is returned when the compressed member of an archive
	// cannot be decompressed.
	ErrDecompression = errors.New("decompression failed")

	// ErrInvalidConfig is returned for configuration values outside their
	// valid range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PackError reports that a file could not be added to an archive.
type PackError struct {
	Path string
	Err  error
}

func (e *PackError) Error() string {
	return fmt.Sprintf("pack %v: %v", e.Path, e.Err)
}

func (e *PackError) Unwrap() error {
	return e.Err
}

// PathTraversalError reports an archive member whose name would escape the
// extraction directory.
type PathTraversalError struct {
	Name string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("refusing to extract %q: member path escapes the target directory", e.Name)
}

// Config holds the tunable packing parameters.
type Config struct {
	// SampleRatio selects the fraction of each file that is read for the
	// entropy estimate.
	SampleRatio float64
	// Threshold is the entropy score above which a file is stored
	// uncompressed.
	Threshold float64
}

// DefaultConfig returns the default packing parameters.
func DefaultConfig() Config {
	return Config{
		SampleRatio: DefaultSampleRatio,
		Threshold:   DefaultThreshold,
	}
}

// Validate checks that all parameters are within their valid range. A
// threshold outside [0, 8] is accepted, it degenerates into compressing
// everything or nothing.
func (c Config) Validate() error {
	if math.IsNaN(c.SampleRatio) || c.SampleRatio <= 0 || c.SampleRatio > 1 {
		return errors.Wrapf(ErrInvalidConfig, "sample ratio must be within (0, 1], got %v", c.SampleRatio)
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return errors.Wrapf(ErrInvalidConfig, "entropy threshold must be a finite number, got %v", c.Threshold)
	}
	return nil
}

// Entry describes a single archive member.
type Entry struct {
	// Path is the member name as stored in the archive.
	Path string
	// Size is the uncompressed size of the member in bytes.
	Size int64
	// Mode holds the member's permission bits, plus setuid, setgid and
	// sticky when set.
	Mode fs.FileMode
	// ModTime is the member's modification time, at second granularity.
	ModTime time.Time
	// Decision states which stream the member belongs to.
	Decision entropy.Decision
}

// PackResult describes the outcome of adding one file to a Packer.
type PackResult struct {
	Entry
	// Score is the entropy estimate the routing decision was based on.
	Score float64
}
