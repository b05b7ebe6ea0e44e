package imageset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

// Image is a decoded image together with its raw bytes and metadata
type Image struct {
	Data  []byte
	Image image.Image
	Meta  models.SampleMetadata
}

// ContentType returns the MIME type of the original file
func (img *Image) ContentType() string {
	switch img.Meta.Format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Load reads and decodes the image at path and computes its metadata.
// A file that cannot be decoded is reported as ErrInvalidValue.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image %s: %v", models.ErrInvalidValue, path, err)
	}

	sum := sha256.Sum256(data)
	bounds := decoded.Bounds()
	mean, std, sharpness := pixelStats(decoded)

	return &Image{
		Data:  data,
		Image: decoded,
		Meta: models.SampleMetadata{
			SizeInBytes: int64(len(data)),
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
			Format:      format,
			SHA256:      hex.EncodeToString(sum[:]),
			Mean:        mean,
			Std:         std,
			Sharpness:   sharpness,
		},
	}, nil
}

// ReadMetadata returns the metadata of the image at path
func ReadMetadata(path string) (models.SampleMetadata, error) {
	img, err := Load(path)
	if err != nil {
		return models.SampleMetadata{}, err
	}
	return img.Meta, nil
}

// luminance returns the Rec. 601 luma of every pixel, row by row, in [0, 255]
func luminance(img image.Image) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	lum := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
		}
	}
	return lum, w, h
}

// pixelStats computes mean and standard deviation of the luminance and the
// variance of its 4-neighbour Laplacian as a sharpness score
func pixelStats(img image.Image) (mean, std, sharpness float64) {
	lum, w, h := luminance(img)
	if len(lum) == 0 {
		return 0, 0, 0
	}

	var sum, sumSq float64
	for _, v := range lum {
		sum += v
		sumSq += v * v
	}
	n := float64(len(lum))
	mean = sum / n
	std = math.Sqrt(math.Max(0, sumSq/n-mean*mean))

	// Laplacian needs a border pixel on every side
	if w < 3 || h < 3 {
		return mean, std, 0
	}

	var lsum, lsumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			l := 4*lum[i] - lum[i-1] - lum[i+1] - lum[i-w] - lum[i+w]
			lsum += l
			lsumSq += l * l
		}
	}
	m := float64((w - 2) * (h - 2))
	lmean := lsum / m
	sharpness = math.Max(0, lsumSq/m-lmean*lmean)
	return mean, std, sharpness
}
