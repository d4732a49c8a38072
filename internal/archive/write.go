package archive

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/ttare/ttare/internal/debug"
	"github.com/ttare/ttare/internal/errors"
)

var tempFile = os.CreateTemp // Overridden by test.

// WriteFile atomically writes data to path. The data is first written to a
// temporary file in the same directory, which is then renamed into place, so
// an interrupted run never leaves a partial archive at path.
func WriteFile(path string, data []byte) (err error) {
	debug.Log("write %v (%d bytes)", path, len(data))

	dir := filepath.Dir(path)
	tmpname := filepath.Base(path) + "-tmp-"

	f, err := tempFile(dir, tmpname)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func(f *os.File) {
		if err != nil {
			_ = f.Close() // Double Close is harmless.
			// The temporary name is never reused, so removing after a
			// successful Rename cannot hit a foreign file.
			_ = os.Remove(f.Name())
		}
	}(f)

	if _, err = f.Write(data); err != nil {
		return errors.WithStack(err)
	}

	// Ignore error if filesystem does not support fsync.
	err = f.Sync()
	syncNotSup := err != nil && errors.Is(err, syscall.ENOTSUP)
	if err != nil && !syncNotSup {
		return errors.WithStack(err)
	}

	// Close, then rename. Windows doesn't like the reverse order.
	if err = f.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return errors.WithStack(err)
	}

	// Now sync the directory to commit the Rename.
	if !syncNotSup {
		err = fsyncDir(dir)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
