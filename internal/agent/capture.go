package agent

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Raster is a rasterized page image.
type Raster struct {
	Data   []byte // JPEG
	Width  int
	Height int
}

// Locate applies the page-image policy to f: the element carrying id
// first, then the first image whose natural size exceeds minDim on both
// axes. It returns nil when f is not page-bearing.
func Locate(ctx context.Context, f Frame, id string, minDim int) Image {
	if id != "" {
		if img, err := f.ImageByID(ctx, id); err == nil && img != nil {
			return img
		}
	}

	imgs, err := f.Images(ctx)
	if err != nil {
		return nil
	}
	for _, img := range imgs {
		info, err := img.Info(ctx)
		if err != nil {
			continue
		}
		if info.NaturalWidth > minDim && info.NaturalHeight > minDim {
			return img
		}
	}
	return nil
}

// Rasterize waits for img to finish loading (bounded by cfg.LoadTimeout),
// draws it onto a surface of its natural size and encodes it as JPEG.
func Rasterize(ctx context.Context, img Image, cfg Config) (Raster, error) {
	cfg.defaults()

	info, err := img.Info(ctx)
	if err != nil {
		return Raster{}, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	if !info.Complete || info.NaturalWidth == 0 {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.LoadTimeout)
		err := img.AwaitLoad(loadCtx)
		cancel()
		if err != nil {
			return Raster{}, fmt.Errorf("%w: %v", ErrImageLoad, err)
		}
		if info, err = img.Info(ctx); err != nil {
			return Raster{}, fmt.Errorf("%w: %v", ErrImageLoad, err)
		}
	}
	if info.NaturalWidth <= 0 || info.NaturalHeight <= 0 {
		return Raster{}, fmt.Errorf("%w: image has no natural size", ErrImageLoad)
	}

	raw, err := img.Pixels(ctx)
	if err != nil {
		return Raster{}, fmt.Errorf("agent: read pixels: %w", err)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Raster{}, fmt.Errorf("agent: decode pixels: %w", err)
	}

	w, h := info.NaturalWidth, info.NaturalHeight
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; transparent regions become white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	sb := src.Bounds()
	if sb.Dx() == w && sb.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: cfg.JPEGQuality}); err != nil {
		return Raster{}, fmt.Errorf("agent: encode jpeg: %w", err)
	}
	return Raster{Data: buf.Bytes(), Width: w, Height: h}, nil
}
