package trajectory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix marks dataset files stored zstd-compressed.
const CompressedSuffix = ".zst"

// ReadFile loads flights from a GeoJSON file, decompressing it first when
// the name ends in CompressedSuffix.
func ReadFile(path string) ([]*Flight, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, CompressedSuffix) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	flights, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flights, nil
}

// WriteFile writes flights as a GeoJSON FeatureCollection, compressing with
// zstd when the name ends in CompressedSuffix.
func WriteFile(path string, flights []*Flight) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dataset directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close dataset file: %w", cerr)
		}
	}()

	if !strings.HasSuffix(path, CompressedSuffix) {
		return Encode(f, flights)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to open zstd stream: %w", err)
	}
	if err := Encode(zw, flights); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return nil
}

// FileLoader loads the collection from a dataset file on every call.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) ([]*Flight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFile(l.Path)
}

// String returns the dataset path; it is recorded as the snapshot source.
func (l FileLoader) String() string {
	return l.Path
}
