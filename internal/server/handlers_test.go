package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_HealthHandler(t *testing.T) {
	server := newServerWithDecoder(&fakeDecoder{}, Config{Version: "1.2.3"})

	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{"GET request success", http.MethodGet, http.StatusOK, true},
		{"POST request not allowed", http.MethodPost, http.StatusMethodNotAllowed, false},
		{"PUT request not allowed", http.MethodPut, http.StatusMethodNotAllowed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.checkResponse {
				var response HealthResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "1.2.3", response.Version)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, 0, response.ActiveSessions)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func decodeScanResponse(t *testing.T, w *httptest.ResponseRecorder) ScanImageResponse {
	t.Helper()
	var resp ScanImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestServer_ScanImageHandler_Found(t *testing.T) {
	server := newTestServer(t, Config{})
	data := encodeImageToPNG(t, testutil.QRImage(t, "example.com/menu", 256))

	w := httptest.NewRecorder()
	server.scanImageHandler(w, createMultipartFormRequest(t, "image", data, "code.png"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeScanResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Found)
	assert.Equal(t, "example.com/menu", resp.Result.Payload)
	assert.Equal(t, "http://example.com/menu", resp.Result.URL)
	assert.Equal(t, 256, resp.Result.Width)
	assert.Equal(t, 256, resp.Result.Height)
	require.Len(t, resp.Result.Symbols, 1)
	assert.Equal(t, "qr", resp.Result.Symbols[0].Format)
	assert.NotEmpty(t, resp.Result.Scanned)
}

func TestServer_ScanImageHandler_NotFound(t *testing.T) {
	server := newTestServer(t, Config{})
	data := encodeImageToPNG(t, testutil.BlankImage(120, 80))

	w := httptest.NewRecorder()
	server.scanImageHandler(w, createMultipartFormRequest(t, "image", data, "blank.png"))

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeScanResponse(t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.Result.Found)
	assert.Empty(t, resp.Result.Payload)
	assert.Empty(t, resp.Result.Symbols)
}

func TestServer_ScanImageHandler_FirstNonEmptyPayload(t *testing.T) {
	server := newServerWithDecoder(&fakeDecoder{results: []barcode.Result{
		{Format: "qr", Value: ""},
		{Format: "qr", Value: "SECOND"},
		{Format: "qr", Value: "THIRD"},
	}}, Config{})
	data := encodeImageToPNG(t, testutil.BlankImage(10, 10))

	w := httptest.NewRecorder()
	server.scanImageHandler(w, createMultipartFormRequest(t, "image", data, "x.png"))

	resp := decodeScanResponse(t, w)
	assert.Equal(t, "SECOND", resp.Result.Payload)
	assert.Empty(t, resp.Result.URL)
	assert.Len(t, resp.Result.Symbols, 3)
}

func TestServer_ScanImageHandler_Errors(t *testing.T) {
	png := encodeImageToPNG(t, testutil.BlankImage(10, 10))

	tests := []struct {
		name    string
		server  *Server
		req     func() *http.Request
		status  int
		message string
	}{
		{
			name:   "method not allowed",
			server: newServerWithDecoder(&fakeDecoder{}, Config{}),
			req:    func() *http.Request { return httptest.NewRequest(http.MethodGet, "/scan/image", nil) },
			status: http.StatusMethodNotAllowed,
		},
		{
			name:    "not multipart",
			server:  newServerWithDecoder(&fakeDecoder{}, Config{}),
			req:     func() *http.Request { return httptest.NewRequest(http.MethodPost, "/scan/image", strings.NewReader("x")) },
			status:  http.StatusBadRequest,
			message: "Failed to parse form data",
		},
		{
			name:    "missing image field",
			server:  newServerWithDecoder(&fakeDecoder{}, Config{}),
			req:     func() *http.Request { return createMultipartFormRequest(t, "file", png, "x.png") },
			status:  http.StatusBadRequest,
			message: "No image file provided",
		},
		{
			name:    "invalid image",
			server:  newServerWithDecoder(&fakeDecoder{}, Config{}),
			req:     func() *http.Request { return createMultipartFormRequest(t, "image", []byte("not an image"), "x.png") },
			status:  http.StatusBadRequest,
			message: "Invalid image format",
		},
		{
			name:    "decoder failure",
			server:  newServerWithDecoder(&fakeDecoder{err: errors.New("boom")}, Config{}),
			req:     func() *http.Request { return createMultipartFormRequest(t, "image", png, "x.png") },
			status:  http.StatusUnprocessableEntity,
			message: "Decode failed: boom",
		},
		{
			name:   "too large",
			server: newServerWithDecoder(&fakeDecoder{}, Config{MaxUploadMB: 1}),
			req: func() *http.Request {
				return createMultipartFormRequest(t, "image", make([]byte, 2*1024*1024), "big.png")
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "File too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.server.scanImageHandler(w, tt.req())

			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				resp := decodeScanResponse(t, w)
				assert.False(t, resp.Success)
				assert.Equal(t, tt.message, resp.Error)
			}
		})
	}
}

func TestServer_SetupRoutes(t *testing.T) {
	server := newServerWithDecoder(&fakeDecoder{}, Config{})
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
