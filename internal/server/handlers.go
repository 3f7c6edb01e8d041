package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/present"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/MeKo-Tech/qrlens/internal/utils"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:         "healthy",
		Version:        s.version,
		Time:           time.Now().UTC().Format(time.RFC3339),
		ActiveSessions: s.ActiveSessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error encoding health response", "error", err)
	}
}

// scanImageHandler decodes an uploaded still image.
func (s *Server) scanImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}

	img, meta, err := utils.DecodeImage(data)
	if err != nil {
		imageScansTotal.WithLabelValues("error").Inc()
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	start := time.Now()
	results, err := s.decoder.DecodeImage(ctx, img)
	if err != nil {
		imageScansTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Still-image decode failed", "file", header.Filename, "error", err)
		s.writeErrorResponse(w, fmt.Sprintf("Decode failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	res := buildImageResult(results, meta.Width, meta.Height, time.Since(start))
	if res.Found {
		imageScansTotal.WithLabelValues("found").Inc()
	} else {
		imageScansTotal.WithLabelValues("not_found").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ScanImageResponse{Success: true, Result: res}); err != nil {
		s.logger.Error("Error encoding scan response", "error", err)
	}
}

func buildImageResult(results []barcode.Result, width, height int, elapsed time.Duration) *ScanImageResult {
	res := &ScanImageResult{
		Symbols: make([]Symbol, 0, len(results)),
		Width:   width,
		Height:  height,
		Scanned: present.FormatTimestamp(time.Now()),
		TimeMs:  elapsed.Milliseconds(),
	}
	for _, r := range results {
		b := r.BBox
		res.Symbols = append(res.Symbols, Symbol{
			Value:  r.Value,
			Format: r.Format,
			BBox:   [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
		})
	}
	if payload, ok := scan.FirstPayload(barcode.Payloads(results)); ok {
		res.Found = true
		res.Payload = present.SanitizePayload(payload)
		res.URL, _ = present.NormalizeURL(res.Payload)
	}
	return res
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ScanImageResponse{Success: false, Error: message}); err != nil {
		// Log error, but can't send another response
		s.logger.Error("Error writing error response", "error", err)
	}
}
