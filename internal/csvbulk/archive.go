// Package csvbulk implements the bulk historical-pricing subsystem backed by
// downloaded CSV archives: chunking them into per-month gzip shards, indexing
// those shards, and emulating weekly candles from daily ones when an
// exchange's archive doesn't publish a weekly granularity directly.
package csvbulk

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// maxDownloadAttempts bounds the retry loop in EnsurePresent: an archive
// download that keeps coming back corrupt (e.g. an HTML interstitial page
// saved as if it were the CSV body) is abandoned after this many tries.
const maxDownloadAttempts = 3

// Confirmation lets a caller gate an expensive or irreversible step behind an
// interactive or scripted check. EnsurePresent does not take one: its gate is
// a prompt-less func() bool.
type Confirmation func(prompt string) bool

// Archive represents one downloadable bulk-pricing archive file.
type Archive struct {
	URL       string
	LocalPath string
	// Client defaults to http.DefaultClient when nil.
	Client *http.Client
}

// EnsurePresent downloads the archive to LocalPath if it isn't already
// present, retrying up to maxDownloadAttempts times if the download comes
// back looking like an HTML interstitial (some archive hosts serve a "click
// to continue" page in place of the file under load) rather than CSV data.
// confirm is invoked once before the first network request; if it returns
// false, EnsurePresent returns without downloading.
func (a *Archive) EnsurePresent(confirm func() bool) error {
	if _, err := os.Stat(a.LocalPath); err == nil {
		return nil
	}

	if confirm != nil && !confirm() {
		return fmt.Errorf("csvbulk: download of %s declined", a.URL)
	}

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if err := a.downloadOnce(client); err != nil {
			lastErr = err
			log.Printf("[csvbulk] archive download attempt %d/%d failed: %v", attempt, maxDownloadAttempts, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("csvbulk: giving up on %s after %d attempts: %w", a.URL, maxDownloadAttempts, lastErr)
}

func (a *Archive) downloadOnce(client *http.Client) error {
	resp, err := client.Get(a.URL)
	if err != nil {
		return fmt.Errorf("GET %s: %w", a.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", a.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body of %s: %w", a.URL, err)
	}

	if looksLikeHTML(body) {
		return fmt.Errorf("archive body for %s looks like an HTML interstitial, not CSV data", a.URL)
	}

	tmp := a.LocalPath + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", a.URL, err)
	}
	if err := os.Rename(tmp, a.LocalPath); err != nil {
		return fmt.Errorf("rename temp file into place for %s: %w", a.URL, err)
	}
	return nil
}

func looksLikeHTML(body []byte) bool {
	prefix := strings.TrimSpace(strings.ToLower(string(body[:min(len(body), 512)])))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}
