package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ttare/ttare/internal/archive"
	"github.com/ttare/ttare/internal/entropy"
	"github.com/ttare/ttare/internal/errors"
	rtest "github.com/ttare/ttare/internal/test"
)

// lowEntropyData returns compressible text-like data.
func lowEntropyData(repeat int) []byte {
	return bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), repeat)
}

type member struct {
	header  *tar.Header
	content []byte
}

// tarMembers parses data as a tar archive and returns all members.
func tarMembers(t testing.TB, data []byte) []member {
	var members []member

	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		rtest.OK(t, err)

		content, err := io.ReadAll(tr)
		rtest.OK(t, err)

		members = append(members, member{header: hdr, content: content})
	}

	return members
}

// gunzip decompresses data.
func gunzip(t testing.TB, data []byte) []byte {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	rtest.OK(t, err)

	buf, err := io.ReadAll(gz)
	rtest.OK(t, err)
	rtest.OK(t, gz.Close())

	return buf
}

func writeFile(t testing.TB, dir, name string, data []byte) {
	p := filepath.Join(dir, name)
	rtest.OK(t, os.MkdirAll(filepath.Dir(p), 0755))
	rtest.OK(t, os.WriteFile(p, data, 0644))
}

func TestPackerRoutesByEntropy(t *testing.T) {
	tempdir := rtest.TempDir(t)

	textData := lowEntropyData(100)
	binData := rtest.Random(1, 4096)

	writeFile(t, tempdir, "a.txt", textData)
	writeFile(t, tempdir, "b.bin", binData)

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())

	resA, err := p.Add(context.TODO(), "a.txt")
	rtest.OK(t, err)
	rtest.Equals(t, entropy.DecisionCompress, resA.Decision)
	rtest.Assert(t, resA.Score < archive.DefaultThreshold, "expected low entropy for text, got %v", resA.Score)
	rtest.Equals(t, "a.txt", resA.Path)
	rtest.Equals(t, int64(len(textData)), resA.Size)

	resB, err := p.Add(context.TODO(), "b.bin")
	rtest.OK(t, err)
	rtest.Equals(t, entropy.DecisionStore, resB.Decision)
	rtest.Assert(t, resB.Score > archive.DefaultThreshold, "expected high entropy for random data, got %v", resB.Score)

	data, err := p.Finalize()
	rtest.OK(t, err)

	members := tarMembers(t, data)
	rtest.Equals(t, 2, len(members))

	// the high-entropy file is stored as-is at the top level
	rtest.Equals(t, "b.bin", members[0].header.Name)
	rtest.Assert(t, bytes.Equal(binData, members[0].content), "raw member content differs from the input file")

	// the reserved member comes last and is read-only
	reserved := members[1]
	rtest.Equals(t, archive.CompressedMemberName, reserved.header.Name)
	rtest.Equals(t, int64(0o444), reserved.header.Mode)

	inner := tarMembers(t, gunzip(t, reserved.content))
	rtest.Equals(t, 1, len(inner))
	rtest.Equals(t, "a.txt", inner[0].header.Name)
	rtest.Assert(t, bytes.Equal(textData, inner[0].content), "inner member content differs from the input file")
}

func TestPackerNoCompressibleMembers(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, "b1.bin", rtest.Random(2, 4096))
	writeFile(t, tempdir, "b2.bin", rtest.Random(3, 4096))

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())
	for _, name := range []string{"b1.bin", "b2.bin"} {
		res, err := p.Add(context.TODO(), name)
		rtest.OK(t, err)
		rtest.Equals(t, entropy.DecisionStore, res.Decision)
	}

	data, err := p.Finalize()
	rtest.OK(t, err)

	// no compressible member, no reserved member
	members := tarMembers(t, data)
	rtest.Equals(t, 2, len(members))
	rtest.Equals(t, "b1.bin", members[0].header.Name)
	rtest.Equals(t, "b2.bin", members[1].header.Name)
}

func TestPackerAllCompressible(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, "a1.txt", lowEntropyData(10))
	writeFile(t, tempdir, "a2.txt", lowEntropyData(20))

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())
	for _, name := range []string{"a1.txt", "a2.txt"} {
		res, err := p.Add(context.TODO(), name)
		rtest.OK(t, err)
		rtest.Equals(t, entropy.DecisionCompress, res.Decision)
	}

	data, err := p.Finalize()
	rtest.OK(t, err)

	members := tarMembers(t, data)
	rtest.Equals(t, 1, len(members))
	rtest.Equals(t, archive.CompressedMemberName, members[0].header.Name)

	inner := tarMembers(t, gunzip(t, members[0].content))
	rtest.Equals(t, 2, len(inner))
	rtest.Equals(t, "a1.txt", inner[0].header.Name)
	rtest.Equals(t, "a2.txt", inner[1].header.Name)
}

func TestPackerEmpty(t *testing.T) {
	p := archive.NewPacker(archive.DefaultConfig())

	data, err := p.Finalize()
	rtest.OK(t, err)

	rtest.Equals(t, 0, len(tarMembers(t, data)))
}

func TestPackerThresholdBoundary(t *testing.T) {
	tempdir := rtest.TempDir(t)

	// constant data has entropy 0.0, with threshold 0.0 the score equals
	// the threshold and the file must still be compressed
	writeFile(t, tempdir, "zero.dat", bytes.Repeat([]byte{0x00}, 1024))
	writeFile(t, tempdir, "rand.dat", rtest.Random(4, 4096))

	defer rtest.Chdir(t, tempdir)()

	cfg := archive.DefaultConfig()
	cfg.Threshold = 0.0
	rtest.OK(t, cfg.Validate())

	p := archive.NewPacker(cfg)

	res, err := p.Add(context.TODO(), "zero.dat")
	rtest.OK(t, err)
	rtest.Equals(t, 0.0, res.Score)
	rtest.Equals(t, entropy.DecisionCompress, res.Decision)

	res, err = p.Add(context.TODO(), "rand.dat")
	rtest.OK(t, err)
	rtest.Equals(t, entropy.DecisionStore, res.Decision)
}

func TestPackerEmptyFile(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, "empty", nil)

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())

	res, err := p.Add(context.TODO(), "empty")
	rtest.OK(t, err)
	rtest.Equals(t, 0.0, res.Score)
	rtest.Equals(t, entropy.DecisionCompress, res.Decision)

	data, err := p.Finalize()
	rtest.OK(t, err)

	members := tarMembers(t, data)
	rtest.Equals(t, 1, len(members))

	inner := tarMembers(t, gunzip(t, members[0].content))
	rtest.Equals(t, 1, len(inner))
	rtest.Equals(t, "empty", inner[0].header.Name)
	rtest.Equals(t, int64(0), inner[0].header.Size)
}

func TestPackerReservedName(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, archive.CompressedMemberName, []byte("not really compressed"))

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())

	_, err := p.Add(context.TODO(), archive.CompressedMemberName)
	var packErr *archive.PackError
	rtest.Assert(t, errors.As(err, &packErr), "expected PackError, got %v", err)
	rtest.Assert(t, strings.Contains(err.Error(), "reserved"), "unexpected error message %q", err)
}

func TestPackerMissingFile(t *testing.T) {
	tempdir := rtest.TempDir(t)
	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())

	_, err := p.Add(context.TODO(), "does-not-exist")
	var packErr *archive.PackError
	rtest.Assert(t, errors.As(err, &packErr), "expected PackError, got %v", err)
	rtest.Equals(t, "does-not-exist", packErr.Path)
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "expected wrapped ErrNotExist, got %v", err)

	// a failed Add before any write must not break the packer
	writeFile(t, tempdir, "ok.txt", lowEntropyData(5))
	_, err = p.Add(context.TODO(), "ok.txt")
	rtest.OK(t, err)

	_, err = p.Finalize()
	rtest.OK(t, err)
}

func TestPackerNonRegularFile(t *testing.T) {
	tempdir := rtest.TempDir(t)

	rtest.OK(t, os.Mkdir(filepath.Join(tempdir, "subdir"), 0755))

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())

	_, err := p.Add(context.TODO(), "subdir")
	var packErr *archive.PackError
	rtest.Assert(t, errors.As(err, &packErr), "expected PackError, got %v", err)
}

func TestPackerStripsLeadingSlash(t *testing.T) {
	tempdir := rtest.TempDir(t)

	data := lowEntropyData(10)
	writeFile(t, tempdir, "abs.txt", data)

	p := archive.NewPacker(archive.DefaultConfig())

	res, err := p.Add(context.TODO(), filepath.Join(tempdir, "abs.txt"))
	rtest.OK(t, err)
	rtest.Assert(t, !strings.HasPrefix(res.Path, "/"), "member name %q must not start with a slash", res.Path)
	rtest.Assert(t, strings.HasSuffix(res.Path, "abs.txt"), "member name %q lost the file name", res.Path)
}

func TestPackerAfterFinalize(t *testing.T) {
	p := archive.NewPacker(archive.DefaultConfig())

	_, err := p.Finalize()
	rtest.OK(t, err)

	_, err = p.Add(context.TODO(), "whatever")
	rtest.Assert(t, err != nil, "expected error for Add after Finalize")

	_, err = p.Finalize()
	rtest.Assert(t, err != nil, "expected error for double Finalize")
}

func TestPackerCanceledContext(t *testing.T) {
	tempdir := rtest.TempDir(t)
	writeFile(t, tempdir, "a.txt", lowEntropyData(5))

	defer rtest.Chdir(t, tempdir)()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := archive.NewPacker(archive.DefaultConfig())
	_, err := p.Add(ctx, "a.txt")
	rtest.Assert(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func TestPackerModTime(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, "a.txt", lowEntropyData(10))
	mtime := time.Date(2023, 5, 17, 10, 30, 59, 0, time.UTC)
	rtest.OK(t, os.Chtimes(filepath.Join(tempdir, "a.txt"), mtime, mtime))

	defer rtest.Chdir(t, tempdir)()

	p := archive.NewPacker(archive.DefaultConfig())
	res, err := p.Add(context.TODO(), "a.txt")
	rtest.OK(t, err)
	rtest.Assert(t, res.ModTime.Equal(mtime), "expected mtime %v, got %v", mtime, res.ModTime)
}

func TestConfigValidate(t *testing.T) {
	rtest.OK(t, archive.DefaultConfig().Validate())

	// out-of-range thresholds are valid, they just compress everything or
	// nothing
	rtest.OK(t, archive.Config{SampleRatio: 0.5, Threshold: -1}.Validate())
	rtest.OK(t, archive.Config{SampleRatio: 0.5, Threshold: 8.5}.Validate())

	for _, cfg := range []archive.Config{
		{SampleRatio: 0, Threshold: 6.5},
		{SampleRatio: -0.1, Threshold: 6.5},
		{SampleRatio: 1.5, Threshold: 6.5},
		{SampleRatio: math.NaN(), Threshold: 6.5},
		{SampleRatio: 0.5, Threshold: math.NaN()},
		{SampleRatio: 0.5, Threshold: math.Inf(1)},
	} {
		err := cfg.Validate()
		rtest.Assert(t, errors.Is(err, archive.ErrInvalidConfig),
			"expected ErrInvalidConfig for %+v, got %v", cfg, err)
	}
}

func TestPackerDegenerateThreshold(t *testing.T) {
	tempdir := rtest.TempDir(t)

	writeFile(t, tempdir, "a.txt", lowEntropyData(20))
	writeFile(t, tempdir, "b.bin", rtest.Random(5, 4096))

	defer rtest.Chdir(t, tempdir)()

	// a threshold above the maximum score compresses everything
	cfg := archive.DefaultConfig()
	cfg.Threshold = 9
	rtest.OK(t, cfg.Validate())

	p := archive.NewPacker(cfg)
	for _, name := range []string{"a.txt", "b.bin"} {
		res, err := p.Add(context.TODO(), name)
		rtest.OK(t, err)
		rtest.Equals(t, entropy.DecisionCompress, res.Decision)
	}

	// a negative threshold stores everything, even constant data
	cfg.Threshold = -1
	rtest.OK(t, cfg.Validate())

	p = archive.NewPacker(cfg)
	for _, name := range []string{"a.txt", "b.bin"} {
		res, err := p.Add(context.TODO(), name)
		rtest.OK(t, err)
		rtest.Equals(t, entropy.DecisionStore, res.Decision)
	}
}
