package assets

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeNoisyPNG(t *testing.T, path string, w, h int) int64 {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

func decodedWidth(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width
}

func TestOptimizer_ResizesWideImages(t *testing.T) {
	root := t.TempDir()
	wide := filepath.Join(root, "assets", "images", "hero.png")
	before := writeNoisyPNG(t, wide, 400, 200)

	o := NewOptimizer(0, 100, 80, zap.NewNop())
	res, err := o.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Optimized)
	assert.Equal(t, 100, decodedWidth(t, wide))
	info, _ := os.Stat(wide)
	assert.Less(t, info.Size(), before)
}

func TestOptimizer_NeverWidens(t *testing.T) {
	root := t.TempDir()
	narrow := filepath.Join(root, "assets", "images", "icon.png")
	writeNoisyPNG(t, narrow, 50, 50)

	o := NewOptimizer(0, 100, 80, zap.NewNop())
	_, err := o.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 50, decodedWidth(t, narrow))
}

func TestOptimizer_SkipsSmallAndBrokenFiles(t *testing.T) {
	root := t.TempDir()
	small := filepath.Join(root, "assets", "images", "small.png")
	size := writeNoisyPNG(t, small, 300, 10)
	broken := filepath.Join(root, "assets", "images", "broken.jpg")
	require.NoError(t, os.WriteFile(broken, make([]byte, 64), 0o644))

	o := NewOptimizer(size, 100, 80, zap.NewNop())
	res, err := o.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 0, res.Optimized)
	assert.Equal(t, 0, res.Failed, "broken file is below the threshold")
	assert.Equal(t, 300, decodedWidth(t, small))
}

func TestOptimizer_NoAssetsDir(t *testing.T) {
	res, err := NewOptimizer(0, 100, 80, zap.NewNop()).Run(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}
