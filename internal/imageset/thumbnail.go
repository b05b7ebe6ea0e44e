package imageset

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path"
	"strings"

	"golang.org/x/image/draw"
)

// ThumbnailQuality is the JPEG quality thumbnails are encoded with
const ThumbnailQuality = 90

// ThumbnailSize returns the size an image of w x h is scaled to so that its
// longer side is at most maxSide. Images are never upscaled.
func ThumbnailSize(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}

// Thumbnail scales img down to fit maxSide and returns it JPEG-encoded
func Thumbnail(img image.Image, maxSide int) ([]byte, error) {
	if maxSide < 1 {
		return nil, fmt.Errorf("invalid thumbnail size %d", maxSide)
	}

	src := img.Bounds()
	w, h := ThumbnailSize(src.Dx(), src.Dy(), maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailName returns the file name a thumbnail of fileName is stored under,
// e.g. "cats/a.png" -> "cats/a_thumb.jpg"
func ThumbnailName(fileName string) string {
	ext := path.Ext(fileName)
	return strings.TrimSuffix(fileName, ext) + "_thumb.jpg"
}
