package trace

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const compressedSuffix = ".zst"

const bufioSize = 64 * 1024

// readCloser forwards Close to every closer, in order.
type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

type writeCloser struct {
	io.Writer
	closers []func() error
}

func (wc *writeCloser) Close() error {
	var errs []error
	for _, c := range wc.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Open opens a trace file, transparently decompressing names ending in .zst.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, compressedSuffix) {
		return &readCloser{Reader: bufio.NewReaderSize(f, bufioSize), closers: []func() error{f.Close}}, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &readCloser{
		Reader: bufio.NewReaderSize(dec, bufioSize),
		closers: []func() error{func() error {
			dec.Close()
			return nil
		}, f.Close},
	}, nil
}

// Create creates a trace file, compressing it when the name ends in .zst.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, compressedSuffix) {
		return &writeCloser{Writer: f, closers: []func() error{f.Close}}, nil
	}

	bw := bufio.NewWriterSize(f, bufioSize)
	enc, err := zstd.NewWriter(bw,
		zstd.WithEncoderCRC(true),
		zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &writeCloser{
		Writer:  enc,
		closers: []func() error{enc.Close, bw.Flush, f.Close},
	}, nil
}

// ReadFile opens and parses a trace file.
func ReadFile(path string) ([]Op, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Parse(r)
}

// WriteFile writes ops to a trace file.
func WriteFile(path string, ops []Op) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if err := Write(w, ops); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
