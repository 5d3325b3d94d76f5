package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

func testImageBytes(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	err := imaging.Encode(&buf, img, format)
	require.NoError(t, err)

	return buf.Bytes()
}

func mustDecode(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotNil(t, img)

	return img
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    imaging.Format
		wantErr error
	}{
		{name: "png", data: testImageBytes(t, 10, 10, imaging.PNG), want: imaging.PNG},
		{name: "jpeg", data: testImageBytes(t, 10, 10, imaging.JPEG), want: imaging.JPEG},
		{name: "gif", data: testImageBytes(t, 10, 10, imaging.GIF), want: imaging.GIF},
		{name: "empty", data: nil, wantErr: model.ErrEmptySource},
		{name: "not an image", data: []byte("not-an-image"), wantErr: model.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DetectFormat(tt.data)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, model.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, f)
		})
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		maxSide  int
		wantW    int
		wantH    int
		wantSame bool
		wantErr  bool
	}{
		{
			name:    "large image is fitted",
			data:    testImageBytes(t, 400, 200, imaging.PNG),
			maxSide: 100,
			wantW:   100,
			wantH:   50,
		},
		{
			name:     "small image passes through",
			data:     testImageBytes(t, 40, 20, imaging.PNG),
			maxSide:  100,
			wantW:    40,
			wantH:    20,
			wantSame: true,
		},
		{
			name:     "disabled resizing",
			data:     testImageBytes(t, 400, 200, imaging.JPEG),
			maxSide:  0,
			wantW:    400,
			wantH:    200,
			wantSame: true,
		},
		{
			name:    "broken image",
			data:    []byte("broken"),
			maxSide: 100,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Preview(tt.data, tt.maxSide)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, blob.Data)
			if tt.wantSame {
				require.Equal(t, tt.data, blob.Data)
			}

			img := mustDecode(t, blob.Data)
			require.Equal(t, tt.wantW, img.Bounds().Dx())
			require.Equal(t, tt.wantH, img.Bounds().Dy())
		})
	}
}
