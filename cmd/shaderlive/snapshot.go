package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/shaderlive"
	"github.com/gogpu/shaderlive/gpu"
)

// encoderFor picks an image encoder from the file extension.
func encoderFor(path string) (func(io.Writer, image.Image) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode, nil
	case ".bmp":
		return bmp.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, m image.Image) error {
			return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	default:
		return nil, fmt.Errorf("snapshot: unsupported format %q", filepath.Ext(path))
	}
}

// writeSnapshot reads the offscreen target back and writes it to path.
func writeSnapshot(gc *gpu.Context, path string) error {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	surface, err := gc.Surface()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	off, ok := surface.(*gpu.OffscreenSurface)
	if !ok {
		return fmt.Errorf("snapshot: surface %T cannot be read back", surface)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	img, err := off.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return saveImage(path, img, encode)
}

func saveImage(path string, img image.Image, encode func(io.Writer, image.Image) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("snapshot: %w", cerr)
		}
	}()
	if err := encode(f, img); err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", path, err)
	}
	shaderlive.Logger().Info("shaderlive: snapshot written", "path", path,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return nil
}
