package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestProcessingParameters_Apply(t *testing.T) {
	tests := []struct {
		name    string
		patch   ParametersPatch
		want    ProcessingParameters
		wantErr bool
	}{
		{
			name:  "full patch",
			patch: ParametersPatch{Resolution: ptr("1280x720"), BitDepth: ptr(16), Compression: ptr(false)},
			want:  ProcessingParameters{Resolution: Res1280x720, BitDepth: 16, Compression: false, Quality: DefaultQuality},
		},
		{
			name:  "empty values reset the choice",
			patch: ParametersPatch{Resolution: ptr(""), BitDepth: ptr(0)},
			want:  DefaultParameters(),
		},
		{
			name:    "unsupported preset",
			patch:   ParametersPatch{Resolution: ptr("640x480")},
			want:    DefaultParameters(),
			wantErr: true,
		},
		{
			name:    "unsupported bit depth",
			patch:   ParametersPatch{BitDepth: ptr(12)},
			want:    DefaultParameters(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultParameters().Apply(tt.patch)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestProcessingParameters_Validate(t *testing.T) {
	var ve *ValidationError

	err := ProcessingParameters{BitDepth: 8}.Validate()
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "resolution", ve.Field)

	err = ProcessingParameters{Resolution: Res800x600}.Validate()
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "bits_per_channel", ve.Field)

	require.NoError(t, ProcessingParameters{Resolution: Res800x600, BitDepth: 1}.Validate())
}

func TestResolution_Size(t *testing.T) {
	require.Equal(t, 1366, Res1366x768.Width())
	require.Equal(t, 768, Res1366x768.Height())
	require.Zero(t, Resolution("broken").Width())
}

func TestParseVariantKey(t *testing.T) {
	k, err := ParseVariantKey(" Digitized ")
	require.NoError(t, err)
	require.Equal(t, KeyDigitized, k)

	_, err = ParseVariantKey("thumbnail")
	require.ErrorIs(t, err, ErrIncorrectVariant)
}

func TestErrors(t *testing.T) {
	err := Invalid("image", ErrUnsupportedFormat)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	require.Equal(t, ErrUnsupportedFormat.Error(), err.Error())

	te := &TransportError{Op: "upload", Status: 502}
	require.ErrorIs(t, te, ErrTransport)
	require.Contains(t, te.Error(), "502")

	wrapped := &TransportError{Op: "upload", Err: errors.New("connection refused")}
	require.Equal(t, "upload: connection refused", wrapped.Error())
}

func TestFileNames(t *testing.T) {
	require.Equal(t, ".jpg", FileExt("image/jpeg; charset=binary"))
	require.Equal(t, ".bin", FileExt("application/octet-stream"))
	require.Equal(t, "abc_digitized.png", VariantFileName("abc", KeyDigitized, PNG))
}
