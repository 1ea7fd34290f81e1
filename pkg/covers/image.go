package covers

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	// Register the decoders for the formats pages come in.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"
)

const jpegQuality = 95

// normalizeJPEG re-encodes an image as an opaque JPEG. Alpha and palette
// channels are flattened onto a white background. Images that are already
// opaque JPEGs pass through untouched.
func normalizeJPEG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode cover image")
	}

	if format == "jpeg" {
		switch img.(type) {
		case *image.YCbCr, *image.Gray:
			return data, nil
		}
	}

	bounds := img.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, bounds, img, bounds.Min, draw.Over)

	buf := &bytes.Buffer{}
	err = jpeg.Encode(buf, canvas, &jpeg.Options{Quality: jpegQuality})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode cover image")
	}

	return buf.Bytes(), nil
}
