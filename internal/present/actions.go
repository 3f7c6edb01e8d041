package present

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"github.com/disintegration/imaging"
	"github.com/pkg/browser"
)

// ErrNotURL is returned by Open for payloads that are not web addresses.
var ErrNotURL = errors.New("payload is not a URL")

// ErrNoShareDir is returned by Share when no share directory is configured.
var ErrNoShareDir = errors.New("no share directory configured")

// ThumbnailSize bounds the longer side of saved snapshots.
const ThumbnailSize = 320

// Actions runs the result actions. The function fields default to the
// system clipboard and browser and can be replaced in tests.
type Actions struct {
	ShareDir    string
	SnapshotDir string

	CopyFunc func(text string) error
	OpenFunc func(url string) error
	Now      func() time.Time
}

// NewActions creates Actions backed by the system clipboard and browser.
func NewActions(shareDir, snapshotDir string) *Actions {
	return &Actions{
		ShareDir:    shareDir,
		SnapshotDir: snapshotDir,
		CopyFunc:    clipboard.WriteAll,
		OpenFunc:    browser.OpenURL,
		Now:         time.Now,
	}
}

// Copy writes the payload to the clipboard.
func (a *Actions) Copy(payload string) error {
	if a.CopyFunc == nil {
		return errors.New("clipboard not available")
	}
	if err := a.CopyFunc(payload); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// Open normalizes the payload to a URL and opens it in the browser.
func (a *Actions) Open(payload string) (string, error) {
	u, ok := NormalizeURL(payload)
	if !ok {
		return "", ErrNotURL
	}
	if a.OpenFunc == nil {
		return "", errors.New("browser not available")
	}
	if err := a.OpenFunc(u); err != nil {
		return "", fmt.Errorf("open url: %w", err)
	}
	return u, nil
}

// Share writes the payload as a text/plain file into the share directory,
// together with a snapshot when img is not nil. It returns the text file path.
func (a *Actions) Share(r Result, img image.Image) (string, error) {
	if a.ShareDir == "" {
		return "", ErrNoShareDir
	}
	if err := os.MkdirAll(a.ShareDir, 0o755); err != nil {
		return "", fmt.Errorf("create share dir: %w", err)
	}

	base := fmt.Sprintf("qrlens-%s-%d", a.now().Format("20060102-150405"), r.Seq)
	path := filepath.Join(a.ShareDir, base+".txt")
	if err := os.WriteFile(path, []byte(r.Payload+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write share file: %w", err)
	}
	if img != nil {
		if _, err := SaveThumbnail(filepath.Join(a.ShareDir, base+".png"), img); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Snapshot stores a thumbnail of img in the snapshot directory. It returns
// an empty path when no directory is configured or img is nil.
func (a *Actions) Snapshot(seq uint64, img image.Image) (string, error) {
	if a.SnapshotDir == "" || img == nil {
		return "", nil
	}
	if err := os.MkdirAll(a.SnapshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	name := fmt.Sprintf("scan-%s-%d.png", a.now().Format("20060102-150405"), seq)
	return SaveThumbnail(filepath.Join(a.SnapshotDir, name), img)
}

func (a *Actions) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// SaveThumbnail scales img to fit ThumbnailSize and saves it at path. The
// format follows the file extension.
func SaveThumbnail(path string, img image.Image) (string, error) {
	thumb := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, path); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return path, nil
}
