package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/entropy"
	"github.com/ttare/ttare/internal/errors"
)

// Packer builds a container in memory. Files are classified as they are
// added and routed either to the outer archive or to the inner archive,
// which Finalize compresses into the reserved member.
//
// A Packer is not safe for concurrent use. Once an Add reports a write
// error, the underlying streams are broken and all further calls fail.
type Packer struct {
	cfg Config

	outerBuf, innerBuf *bytes.Buffer
	outer, inner       *tar.Writer

	innerCount int
	finalized  bool
	err        error
}

// NewPacker returns a Packer that classifies files according to cfg. The
// configuration must have been validated beforehand.
func NewPacker(cfg Config) *Packer {
	outerBuf := bytes.NewBuffer(nil)
	innerBuf := bytes.NewBuffer(nil)

	return &Packer{
		cfg:      cfg,
		outerBuf: outerBuf,
		innerBuf: innerBuf,
		outer:    tar.NewWriter(outerBuf),
		inner:    tar.NewWriter(innerBuf),
	}
}

// memberName converts an input path to the name stored in the archive.
// Leading slashes and volume names are stripped like GNU tar does, so that
// the resulting member extracts below the target directory.
func memberName(p string) string {
	name := filepath.ToSlash(p)
	if vol := filepath.VolumeName(p); vol != "" {
		name = name[len(vol):]
	}
	return strings.TrimLeft(name, "/")
}

// tar representation of the setuid, setgid and sticky bits. FileInfoHeader
// maps them the same way, archive/tar does not export the constants.
const (
	tarModeSetuid = 0o4000
	tarModeSetgid = 0o2000
	tarModeSticky = 0o1000
)

// headerMode maps the permission and special mode bits to their tar
// representation.
func headerMode(mode os.FileMode) int64 {
	m := int64(mode.Perm())
	if mode&os.ModeSetuid != 0 {
		m |= tarModeSetuid
	}
	if mode&os.ModeSetgid != 0 {
		m |= tarModeSetgid
	}
	if mode&os.ModeSticky != 0 {
		m |= tarModeSticky
	}
	return m
}

// fail marks the packer streams as broken.
func (p *Packer) fail(err error) error {
	p.err = err
	return err
}

// Add reads the file at path, estimates its entropy and appends it to the
// stream selected by the classification. The file is stored under its path
// as supplied, minus any leading slash.
func (p *Packer) Add(ctx context.Context, path string) (PackResult, error) {
	if p.err != nil {
		return PackResult{}, p.err
	}
	if p.finalized {
		return PackResult{}, errors.New("packer is already finalized")
	}
	if ctx.Err() != nil {
		return PackResult{}, ctx.Err()
	}

	name := memberName(path)
	if name == "" {
		return PackResult{}, &PackError{Path: path, Err: errors.New("empty member name")}
	}
	if name == CompressedMemberName {
		return PackResult{}, &PackError{Path: path, Err: errors.Errorf("member name %q is reserved", CompressedMemberName)}
	}

	f, err := os.Open(path)
	if err != nil {
		return PackResult{}, &PackError{Path: path, Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return PackResult{}, &PackError{Path: path, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return PackResult{}, &PackError{Path: path, Err: errors.Errorf("not a regular file (%v)", fi.Mode())}
	}

	score, err := entropy.Estimate(f, fi.Size(), p.cfg.SampleRatio)
	if err != nil {
		return PackResult{}, &PackError{Path: path, Err: err}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return PackResult{}, &PackError{Path: path, Err: err}
	}

	decision := entropy.Classify(score, p.cfg.Threshold)
	debug.Log("%v: entropy %.4f, threshold %v: %v", path, score, p.cfg.Threshold, decision)

	tw := p.outer
	if decision == entropy.DecisionCompress {
		tw = p.inner
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     fi.Size(),
		Mode:     headerMode(fi.Mode()),
		ModTime:  fi.ModTime().Truncate(time.Second),
		Format:   tar.FormatGNU,
	}
	setHeaderOwner(hdr, fi)

	if err := tw.WriteHeader(hdr); err != nil {
		return PackResult{}, p.fail(&PackError{Path: path, Err: err})
	}

	n, err := io.Copy(tw, f)
	if err != nil {
		return PackResult{}, p.fail(&PackError{Path: path, Err: err})
	}
	// sanity check, the file must not change while it is being read
	if n != hdr.Size {
		return PackResult{}, p.fail(&PackError{
			Path: path,
			Err:  errors.Errorf("wrote %d bytes instead of the expected %d bytes", n, hdr.Size),
		})
	}

	if decision == entropy.DecisionCompress {
		p.innerCount++
	}

	return PackResult{
		Entry: Entry{
			Path:     name,
			Size:     hdr.Size,
			Mode:     fi.Mode() & modeBits,
			ModTime:  hdr.ModTime,
			Decision: decision,
		},
		Score: score,
	}, nil
}

// Finalize closes both streams and returns the complete container. When at
// least one file was routed to the inner archive, the compressed inner
// archive is appended to the outer archive as the reserved member. A
// container without compressible members carries no reserved member at all.
//
// Finalize must be called exactly once, after the last Add.
func (p *Packer) Finalize() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.finalized {
		return nil, errors.New("packer is already finalized")
	}
	p.finalized = true

	if err := p.inner.Close(); err != nil {
		return nil, p.fail(errors.WithStack(err))
	}

	if p.innerCount > 0 {
		compressed := bytes.NewBuffer(nil)

		gz := gzip.NewWriter(compressed)
		if _, err := gz.Write(p.innerBuf.Bytes()); err != nil {
			return nil, p.fail(errors.WithStack(err))
		}
		if err := gz.Close(); err != nil {
			return nil, p.fail(errors.WithStack(err))
		}

		debug.Log("inner archive: %d members, %d bytes, %d bytes compressed",
			p.innerCount, p.innerBuf.Len(), compressed.Len())

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     CompressedMemberName,
			Size:     int64(compressed.Len()),
			Mode:     compressedMemberMode,
			ModTime:  time.Now().Truncate(time.Second),
			Format:   tar.FormatGNU,
		}
		if err := p.outer.WriteHeader(hdr); err != nil {
			return nil, p.fail(errors.WithStack(err))
		}
		if _, err := p.outer.Write(compressed.Bytes()); err != nil {
			return nil, p.fail(errors.WithStack(err))
		}
	}

	if err := p.outer.Close(); err != nil {
		return nil, p.fail(errors.WithStack(err))
	}

	return p.outerBuf.Bytes(), nil
}
