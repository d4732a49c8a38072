package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/entropy"
	"github.com/ttare/ttare/internal/errors"
)

// UnpackOptions control extraction behavior.
type UnpackOptions struct {
	// RecordChecksums computes a digest of every extracted file so the
	// files can be checked later with VerifyFiles.
	RecordChecksums bool
}

// Unpacker extracts a container to a directory. Existing files are
// overwritten, like most tar implementations do.
type Unpacker struct {
	opts  UnpackOptions
	sums  map[string]uint64
	bytes uint64

	// Error is called for each file that fails verification. When the
	// callback returns nil, VerifyFiles continues with the remaining files.
	Error func(name string, err error) error
}

// NewUnpacker returns an Unpacker using the given options.
func NewUnpacker(opts UnpackOptions) *Unpacker {
	return &Unpacker{
		opts:  opts,
		sums:  make(map[string]uint64),
		Error: unpackerAbortOnAllErrors,
	}
}

// unpackerAbortOnAllErrors is the default Error callback, it aborts on the
// first verification error.
func unpackerAbortOnAllErrors(_ string, err error) error { return err }

// Unpack reads a container from rd and extracts all members below destDir.
// Members of the reserved compressed member are extracted at its position.
// It returns the names of all extracted members, also when extraction fails
// partway through.
func (u *Unpacker) Unpack(ctx context.Context, rd io.Reader, destDir string) ([]string, error) {
	debug.Log("unpack to %v", destDir)

	var extracted []string
	seenReserved := false

	tr := tar.NewReader(rd)
	for {
		if ctx.Err() != nil {
			return extracted, ctx.Err()
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extracted, errors.Wrapf(ErrCorruptArchive, "%v", err)
		}

		if hdr.Name == CompressedMemberName {
			if seenReserved {
				return extracted, errors.Wrap(ErrCorruptArchive, "duplicate reserved member")
			}
			seenReserved = true

			names, err := u.unpackCompressed(ctx, tr, destDir)
			extracted = append(extracted, names...)
			if err != nil {
				return extracted, err
			}
			continue
		}

		name, err := u.extractFile(hdr, tr, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, name)
	}

	return extracted, nil
}

// unpackCompressed extracts the members of the gzip-compressed inner archive
// read from rd.
func (u *Unpacker) unpackCompressed(ctx context.Context, rd io.Reader, destDir string) ([]string, error) {
	gz, err := gzip.NewReader(rd)
	if err != nil {
		return nil, errors.Wrapf(ErrDecompression, "%v", err)
	}

	var names []string

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return names, ctx.Err()
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return names, wrapReadError(err)
		}

		if hdr.Name == CompressedMemberName {
			return names, errors.Wrap(ErrCorruptArchive, "reserved member inside the compressed stream")
		}

		name, err := u.extractFile(hdr, tr, destDir)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}

	// drain the stream past the inner end-of-archive marker, otherwise the
	// gzip checksum is never verified
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return names, errors.Wrapf(ErrDecompression, "%v", err)
	}
	if err := gz.Close(); err != nil {
		return names, errors.Wrapf(ErrDecompression, "%v", err)
	}

	return names, nil
}

// wrapReadError distinguishes failures of the compression layer from
// malformed tar data.
func wrapReadError(err error) error {
	if isDecompressionError(err) {
		return errors.Wrapf(ErrDecompression, "%v", err)
	}
	return errors.Wrapf(ErrCorruptArchive, "%v", err)
}

func isDecompressionError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) || errors.As(err, &corrupt)
}

// safeJoin joins the member name to destDir and guarantees that the result
// stays below destDir. Absolute names and names containing ".." elements are
// rejected.
func safeJoin(destDir, name string) (string, error) {
	if name == "" {
		return "", errors.Wrap(ErrCorruptArchive, "empty member name")
	}
	if path.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) || filepath.VolumeName(filepath.FromSlash(name)) != "" {
		return "", &PathTraversalError{Name: name}
	}

	// the raw name must be free of parent-directory elements, a member like
	// "a/../b.txt" is rejected even though its cleaned path would stay below
	// destDir
	if containsDotDot(name) {
		return "", &PathTraversalError{Name: name}
	}

	target := filepath.Join(destDir, filepath.FromSlash(name))

	// second line of defense, the target must remain below destDir
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathTraversalError{Name: name}
	}

	return target, nil
}

// containsDotDot reports whether any path element of name is "..". Both
// slashes and backslashes separate elements here, so a name crafted for
// extraction on Windows does not pass on other systems.
func containsDotDot(name string) bool {
	if !strings.Contains(name, "..") {
		return false
	}
	for _, elem := range strings.FieldsFunc(name, isPathSeparator) {
		if elem == ".." {
			return true
		}
	}
	return false
}

func isPathSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// extractFile writes a single regular member read from rd to destDir and
// restores its mode and modification time.
func (u *Unpacker) extractFile(hdr *tar.Header, rd io.Reader, destDir string) (string, error) {
	name := hdr.Name

	if hdr.Typeflag != tar.TypeReg {
		return "", errors.Wrapf(ErrCorruptArchive, "member %q has unsupported type %q", name, hdr.Typeflag)
	}

	target, err := safeJoin(destDir, name)
	if err != nil {
		return "", err
	}

	debug.Log("extract %v to %v (%d bytes)", name, target, hdr.Size)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", errors.WithStack(err)
	}

	mode := hdr.FileInfo().Mode() & modeBits
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return "", errors.WithStack(err)
	}

	var w io.Writer = f
	var sum *xxhash.Digest
	if u.opts.RecordChecksums {
		sum = xxhash.New()
		w = io.MultiWriter(f, sum)
	}

	n, err := io.Copy(w, rd)
	if err != nil {
		_ = f.Close()
		return "", wrapReadError(err)
	}
	if n != hdr.Size {
		_ = f.Close()
		return "", errors.Wrapf(ErrCorruptArchive, "member %q is truncated: %d of %d bytes", name, n, hdr.Size)
	}

	if err := f.Close(); err != nil {
		return "", errors.WithStack(err)
	}

	// the file was created with the umask applied, restore the stored mode
	// including any setuid, setgid and sticky bits
	if err := os.Chmod(target, mode); err != nil {
		return "", errors.WithStack(err)
	}
	if !hdr.ModTime.IsZero() {
		if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
			return "", errors.WithStack(err)
		}
	}

	u.bytes += uint64(n)
	if sum != nil {
		u.sums[name] = sum.Sum64()
	}

	return name, nil
}

// BytesWritten returns the number of content bytes restored so far.
func (u *Unpacker) BytesWritten() uint64 {
	return u.bytes
}

// VerifyFiles re-reads the files extracted by Unpack below destDir and
// compares them against the digests recorded during extraction. Files that
// fail the comparison are reported through the Error callback; when the
// callback swallows the error, the remaining files are still checked. It
// returns the number of files that verified successfully.
func (u *Unpacker) VerifyFiles(ctx context.Context, destDir string) (int, error) {
	if !u.opts.RecordChecksums {
		return 0, errors.New("checksums were not recorded during extraction")
	}

	names := make([]string, 0, len(u.sums))
	for name := range u.sums {
		names = append(names, name)
	}
	sort.Strings(names)

	verified := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return verified, ctx.Err()
		}

		if err := u.verifyFile(destDir, name); err != nil {
			if err := u.Error(name, err); err != nil {
				return verified, err
			}
			continue
		}
		verified++
	}

	return verified, nil
}

func (u *Unpacker) verifyFile(destDir, name string) error {
	sum, err := hashFile(filepath.Join(destDir, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	if sum != u.sums[name] {
		return errors.Errorf("file %v changed after extraction", name)
	}
	return nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	h := xxhash.New()
	_, err = io.Copy(h, f)
	cerr := f.Close()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if cerr != nil {
		return 0, errors.WithStack(cerr)
	}

	return h.Sum64(), nil
}

// List reads a container from rd and returns the entries of all members,
// descending into the reserved compressed member.
func List(rd io.Reader) ([]Entry, error) {
	var entries []Entry
	seenReserved := false

	tr := tar.NewReader(rd)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptArchive, "%v", err)
		}

		if hdr.Name == CompressedMemberName {
			if seenReserved {
				return nil, errors.Wrap(ErrCorruptArchive, "duplicate reserved member")
			}
			seenReserved = true

			inner, err := listCompressed(tr)
			if err != nil {
				return nil, err
			}
			entries = append(entries, inner...)
			continue
		}

		if hdr.Typeflag != tar.TypeReg {
			return nil, errors.Wrapf(ErrCorruptArchive, "member %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}

		entries = append(entries, headerEntry(hdr, entropy.DecisionStore))
	}

	return entries, nil
}

func listCompressed(rd io.Reader) ([]Entry, error) {
	gz, err := gzip.NewReader(rd)
	if err != nil {
		return nil, errors.Wrapf(ErrDecompression, "%v", err)
	}

	var entries []Entry

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapReadError(err)
		}

		if hdr.Name == CompressedMemberName {
			return nil, errors.Wrap(ErrCorruptArchive, "reserved member inside the compressed stream")
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, errors.Wrapf(ErrCorruptArchive, "member %q has unsupported type %q", hdr.Name, hdr.Typeflag)
		}

		entries = append(entries, headerEntry(hdr, entropy.DecisionCompress))
	}

	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, errors.Wrapf(ErrDecompression, "%v", err)
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrapf(ErrDecompression, "%v", err)
	}

	return entries, nil
}

func headerEntry(hdr *tar.Header, decision entropy.Decision) Entry {
	return Entry{
		Path:     hdr.Name,
		Size:     hdr.Size,
		Mode:     hdr.FileInfo().Mode() & modeBits,
		ModTime:  hdr.ModTime,
		Decision: decision,
	}
}
