// Package entropy estimates the Shannon entropy of file contents. The
// estimate is computed over a prefix sample of the input and decides whether
// compressing a file is worthwhile: data that is already close to random,
// like encrypted or compressed files, gains nothing from another compression
// pass.
//
// Sampling only the leading bytes trades accuracy for read speed. Files
// whose entropy differs between head and tail, like a compact header
// followed by a random payload, can be misclassified unless the sampling
// ratio is raised.
package entropy

import (
	"io"
	"math"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/errors"
	"github.com/ttare/ttare/internal/feature"
)

// Decision states whether a file's contents should be compressed or stored
// as-is.
type Decision int

const (
	// DecisionCompress routes a file through the compressed stream.
	DecisionCompress Decision = iota
	// DecisionStore keeps a file uncompressed.
	DecisionStore
)

func (d Decision) String() string {
	switch d {
	case DecisionCompress:
		return "compress"
	case DecisionStore:
		return "store"
	default:
		return "unknown"
	}
}

// MaxScore is the largest possible entropy estimate in bits per byte. It is
// reached when every byte value occurs equally often.
const MaxScore = 8.0

// histogramChunk is the read granularity for building the byte histogram.
const histogramChunk = 1 << 20

// minParallelSample is the smallest sample for which spawning histogram
// workers pays off.
const minParallelSample = 4 << 20

const maxHistogramWorkers = 8

// Classify compares an entropy estimate against threshold. Scores strictly
// above the threshold are considered incompressible.
func Classify(score, threshold float64) Decision {
	if score > threshold {
		return DecisionStore
	}
	return DecisionCompress
}

// Estimate computes the Shannon entropy, in bits per byte, over the first
// floor(size*ratio) bytes of rd. The result is in the interval [0, 8], where
// an empty sample has entropy zero. Estimate returns an error when rd yields
// fewer bytes than the sample requires.
func Estimate(rd io.Reader, size int64, ratio float64) (float64, error) {
	if ratio < 0 || ratio > 1 {
		return 0, errors.Errorf("sampling ratio %v is not within [0, 1]", ratio)
	}
	if size < 0 {
		return 0, errors.Errorf("negative input size %v", size)
	}

	sampleLen := int64(float64(size) * ratio)
	if sampleLen == 0 {
		return 0, nil
	}

	var counts [256]uint64
	var err error
	if feature.Flag.Enabled(feature.ParallelEntropy) && sampleLen >= minParallelSample {
		err = countParallel(rd, sampleLen, &counts)
	} else {
		err = countSequential(rd, sampleLen, &counts)
	}
	if err != nil {
		return 0, err
	}

	return shannon(&counts, sampleLen), nil
}

// EstimateFile computes the entropy estimate for the file at path, sampling
// the prefix selected by ratio.
func EstimateFile(path string, ratio float64) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, errors.WithStack(err)
	}

	score, err := Estimate(f, fi.Size(), ratio)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.WithStack(cerr)
	}
	if err == nil {
		debug.Log("%v: %d bytes, ratio %v, entropy %.4f", path, fi.Size(), ratio, score)
	}
	return score, err
}

func countSequential(rd io.Reader, n int64, counts *[256]uint64) error {
	buf := make([]byte, histogramChunk)
	for n > 0 {
		l := int64(len(buf))
		if n < l {
			l = n
		}

		read, err := io.ReadFull(rd, buf[:l])
		if err != nil {
			return errors.WithStack(err)
		}

		for _, b := range buf[:read] {
			counts[b]++
		}
		n -= int64(read)
	}
	return nil
}

// countParallel distributes histogram counting over several workers. Only the
// integer per-bucket counts are computed concurrently, the merge is plain
// addition, so the result is identical to the sequential count.
func countParallel(rd io.Reader, n int64, counts *[256]uint64) error {
	workers := runtime.GOMAXPROCS(0)
	if workers > maxHistogramWorkers {
		workers = maxHistogramWorkers
	}

	ch := make(chan []byte, workers)
	partial := make([][256]uint64, workers)

	var wg errgroup.Group
	wg.Go(func() error {
		defer close(ch)

		remaining := n
		for remaining > 0 {
			l := int64(histogramChunk)
			if remaining < l {
				l = remaining
			}

			// the buffer is handed off to a worker and must not be reused
			buf := make([]byte, l)
			read, err := io.ReadFull(rd, buf)
			if err != nil {
				return errors.WithStack(err)
			}

			ch <- buf[:read]
			remaining -= int64(read)
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		c := &partial[i]
		wg.Go(func() error {
			for buf := range ch {
				for _, b := range buf {
					c[b]++
				}
			}
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return err
	}

	for i := range partial {
		for b := 0; b < 256; b++ {
			counts[b] += partial[i][b]
		}
	}
	return nil
}

// shannon computes the entropy over the byte histogram in bits per byte.
// Buckets are summed in a fixed order so that the result does not depend on
// how the histogram was assembled.
func shannon(counts *[256]uint64, total int64) float64 {
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}
