package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/frame"
	"github.com/stretchr/testify/require"
)

// fakeDecoder returns fixed results for still images and live frames.
type fakeDecoder struct {
	results []barcode.Result
	err     error
}

func (d *fakeDecoder) Decode(_ context.Context, _ *frame.Frame) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return barcode.Payloads(d.results), nil
}

func (d *fakeDecoder) DecodeImage(_ context.Context, _ image.Image) ([]barcode.Result, error) {
	return d.results, d.err
}

// newTestServer returns a server backed by the real QR decoder.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	dec, err := barcode.NewFrameDecoder(nil, barcode.DefaultOptions())
	require.NoError(t, err)
	s := newServerWithDecoder(dec, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createMultipartFormRequest creates a multipart form request with an image.
func createMultipartFormRequest(t *testing.T, field string, data []byte, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/scan/image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
