package server

import (
	"context"
	"image"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MeKo-Tech/qrlens/internal/barcode"
	"github.com/MeKo-Tech/qrlens/internal/scan"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// decoderInterface defines the methods needed by the server from a decoder.
type decoderInterface interface {
	scan.Decoder
	DecodeImage(ctx context.Context, img image.Image) ([]barcode.Result, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	decoder       decoderInterface
	corsOrigin    string
	maxUploadMB   int64
	maxFrameBytes int64
	timeoutSec    int
	scanOptions   []scan.Option
	version       string
	logger        *slog.Logger
	rateLimiter   *RateLimiter

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	MaxFrameKB  int
	TimeoutSec  int
	Barcode     barcode.Options
	ScanOptions []scan.Option
	Version     string
	Logger      *slog.Logger
	RateLimits  RateLimits
}

// Response types for API endpoints.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	Time           string `json:"time"`
	ActiveSessions int    `json:"active_sessions"`
}

// Symbol is one decoded code in a still image.
type Symbol struct {
	Value  string `json:"value"`
	Format string `json:"format"`
	BBox   [4]int `json:"bbox,omitempty"`
}

// ScanImageResult is the decoder output for an uploaded image. Payload
// follows the live rule: the first non-empty value in decoder order.
type ScanImageResult struct {
	Found   bool     `json:"found"`
	Payload string   `json:"payload,omitempty"`
	URL     string   `json:"url,omitempty"`
	Scanned string   `json:"scanned"`
	Symbols []Symbol `json:"symbols"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	TimeMs  int64    `json:"time_ms"`
}

// ScanImageResponse wraps a still-image result.
type ScanImageResponse struct {
	Success bool             `json:"success"`
	Result  *ScanImageResult `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// NewServer creates a new scan server instance.
func NewServer(config Config) (*Server, error) {
	dec, err := barcode.NewFrameDecoder(nil, config.Barcode)
	if err != nil {
		return nil, err
	}
	return newServerWithDecoder(dec.WithLogger(config.Logger), config), nil
}

func newServerWithDecoder(dec decoderInterface, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 10
	}
	maxFrameKB := config.MaxFrameKB
	if maxFrameKB <= 0 {
		maxFrameKB = 4096
	}
	var limiter *RateLimiter
	if config.RateLimits.Enabled() {
		limiter = NewRateLimiter(config.RateLimits)
	}
	return &Server{
		rateLimiter:   limiter,
		decoder:       dec,
		corsOrigin:    config.CORSOrigin,
		maxUploadMB:   maxUpload,
		maxFrameBytes: int64(maxFrameKB) * 1024,
		timeoutSec:    config.TimeoutSec,
		scanOptions:   config.ScanOptions,
		version:       config.Version,
		logger:        logger,
		sessions:      make(map[string]*liveSession),
	}
}

// Close ends all live sessions.
func (s *Server) Close() error {
	s.mu.Lock()
	live := make([]*liveSession, 0, len(s.sessions))
	for _, ls := range s.sessions {
		live = append(live, ls)
	}
	s.mu.Unlock()

	for _, ls := range live {
		ls.close()
	}
	return nil
}

// ActiveSessions returns the number of connected live-scan clients.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/scan/image", s.corsMiddleware(s.rateLimitMiddleware(s.scanImageHandler)))
	mux.HandleFunc("/ws/scan", s.rateLimitMiddleware(s.liveScanHandler))
	mux.Handle("/metrics", promhttp.Handler())
}
