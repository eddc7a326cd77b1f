package llm

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/lucerna/catalog-engine/internal/domain"
)

// maxImageSide bounds the longest side of a page raster before upload.
// Larger rasters only add tokens without improving extraction quality.
const maxImageSide = 1024

// encodeImageDataURL downscales the raster if needed and returns it as a
// base64 JPEG data URL suitable for a vision chat message.
func encodeImageDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", domain.ValidationError("page image is nil", nil)
	}

	img = downscale(img, maxImageSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", domain.IOError("failed to encode page image", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// downscale resizes img so its longest side is at most maxSide, preserving
// aspect ratio. Images already within bounds are returned unchanged.
func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxSide
		nh = h * maxSide / w
	} else {
		nh = maxSide
		nw = w * maxSide / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
