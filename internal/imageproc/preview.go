// Package imageproc validates selected images and builds local previews for them.
package imageproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/disintegration/imaging"
)

var GetCType = map[imaging.Format]string{
	imaging.JPEG: model.JPEG,
	imaging.GIF:  model.GIF,
	imaging.PNG:  model.PNG,
}

// DetectFormat checks that data is an image of a supported format.
func DetectFormat(data []byte) (imaging.Format, error) {
	if len(data) == 0 {
		return -1, model.Invalid("image", model.ErrEmptySource)
	}

	_, f, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return -1, model.Invalid("image", model.ErrUnsupportedFormat)
	}

	format, err := imaging.FormatFromExtension(f)
	if err != nil {
		return -1, model.Invalid("image", model.ErrUnsupportedFormat)
	}

	if _, ok := GetCType[format]; !ok {
		return -1, model.Invalid("image", model.ErrUnsupportedFormat)
	}
	return format, nil
}

// Preview returns a display copy of data fitted into maxSide x maxSide.
// Images already inside the box, or maxSide <= 0, are passed through untouched.
func Preview(data []byte, maxSide int) (model.Blob, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return model.Blob{}, err
	}
	cType := GetCType[format]

	if maxSide <= 0 {
		return model.Blob{Data: data, ContentType: cType}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Blob{}, fmt.Errorf("failed to DEcode source image in Preview: %w", err)
	}
	if img.Bounds().Dx() <= maxSide && img.Bounds().Dy() <= maxSide {
		return model.Blob{Data: data, ContentType: cType}, nil
	}

	fitted := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, format); err != nil {
		return model.Blob{}, fmt.Errorf("failed to ENcode preview image: %w", err)
	}
	return model.Blob{Data: buf.Bytes(), ContentType: cType}, nil
}
