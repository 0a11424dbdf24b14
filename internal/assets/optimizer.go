package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/user/sitemirror/pkg/metrics"
)

// Optimizer shrinks oversized PNG and JPEG files under the assets tree.
type Optimizer struct {
	MinBytes int64
	MaxWidth int
	Quality  int
	logger   *zap.Logger
}

type OptimizeResult struct {
	Scanned    int
	Optimized  int
	Failed     int
	SavedBytes int64
}

func NewOptimizer(minBytes int64, maxWidth, quality int, logger *zap.Logger) *Optimizer {
	return &Optimizer{MinBytes: minBytes, MaxWidth: maxWidth, Quality: quality, logger: logger}
}

// Run walks root/assets. Per-file errors are logged and counted; only a
// cancelled context or an unreadable tree aborts the walk.
func (o *Optimizer) Run(ctx context.Context, root string) (OptimizeResult, error) {
	var res OptimizeResult
	dir := filepath.Join(root, AssetsDir)
	if _, err := os.Stat(dir); err != nil {
		o.logger.Info("No assets directory, nothing to optimize", zap.String("dir", dir))
		return res, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		res.Scanned++
		if info.Size() <= o.MinBytes {
			metrics.ImagesOptimized.WithLabelValues("skipped").Inc()
			return nil
		}

		saved, err := o.optimizeFile(path, ext, info.Size())
		switch {
		case err != nil:
			res.Failed++
			metrics.ImagesOptimized.WithLabelValues("failed").Inc()
			o.logger.Warn("Image optimization failed", zap.String("file", path), zap.Error(err))
		case saved > 0:
			res.Optimized++
			res.SavedBytes += saved
			metrics.ImagesOptimized.WithLabelValues("optimized").Inc()
			o.logger.Debug("Image optimized", zap.String("file", path), zap.Int64("saved_bytes", saved))
		default:
			metrics.ImagesOptimized.WithLabelValues("skipped").Inc()
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("walk %s: %w", dir, err)
	}
	return res, nil
}

// optimizeFile returns the bytes saved, or 0 when the re-encoded image was not smaller.
func (o *Optimizer) optimizeFile(path, ext string, size int64) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}

	img = o.resize(img)

	var buf bytes.Buffer
	if ext == ".png" {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.Quality})
	}
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}

	if int64(buf.Len()) >= size {
		return 0, nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return size - int64(buf.Len()), nil
}

// resize scales img down to MaxWidth, keeping the aspect ratio. Narrower
// images are returned as is.
func (o *Optimizer) resize(img image.Image) image.Image {
	b := img.Bounds()
	if o.MaxWidth <= 0 || b.Dx() <= o.MaxWidth {
		return img
	}
	h := b.Dy() * o.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, o.MaxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
