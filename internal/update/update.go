// Package update checks GitHub releases for a newer practicelog
// version. It only reports; installing is left to the user's
// package manager.
package update

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	githubAPIURL  = "https://api.github.com/repos/practicelog/practicelog/releases/latest"
	cacheFileName = "update_check.json"
	cacheDuration = 1 * time.Hour
)

// Release represents a GitHub release.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Info describes the result of an update check.
type Info struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	UpdateAvailable bool
}

type cachedCheck struct {
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	CheckedAt time.Time `json:"checked_at"`
}

// Check compares the running version against the latest release.
// Results are cached in cacheDir for an hour; pass force to skip
// the cache.
func Check(current, cacheDir string, force bool) (Info, error) {
	if !force {
		if c := loadCache(cacheDir); c != nil {
			return Info{
				CurrentVersion:  current,
				LatestVersion:   c.Version,
				ReleaseURL:      c.URL,
				UpdateAvailable: isNewer(c.Version, current),
			}, nil
		}
	}

	release, err := fetchLatestRelease()
	if err != nil {
		return Info{}, err
	}
	saveCache(cacheDir, release)

	return Info{
		CurrentVersion:  current,
		LatestVersion:   release.TagName,
		ReleaseURL:      release.HTMLURL,
		UpdateAvailable: isNewer(release.TagName, current),
	}, nil
}

func fetchLatestRelease() (*Release, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(githubAPIURL)
	if err != nil {
		return nil, fmt.Errorf("fetching latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"release check failed: HTTP %d", resp.StatusCode,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading release response: %w", err)
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("parsing release response: %w", err)
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("release response missing tag name")
	}
	return &release, nil
}

func cachePath(cacheDir string) string {
	return filepath.Join(cacheDir, cacheFileName)
}

func loadCache(cacheDir string) *cachedCheck {
	data, err := os.ReadFile(cachePath(cacheDir))
	if err != nil {
		return nil
	}
	var c cachedCheck
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	if time.Since(c.CheckedAt) > cacheDuration {
		return nil
	}
	return &c
}

func saveCache(cacheDir string, release *Release) {
	data, err := json.Marshal(cachedCheck{
		Version:   release.TagName,
		URL:       release.HTMLURL,
		CheckedAt: time.Now(),
	})
	if err != nil {
		return
	}
	_ = os.MkdirAll(cacheDir, 0o755)
	_ = os.WriteFile(cachePath(cacheDir), data, 0o600)
}

// normalize coerces a version string into the canonical v-prefixed
// form semver.Compare expects. Returns "" for non-release versions
// such as "dev".
func normalize(v string) string {
	v = strings.TrimPrefix(v, "v")
	if v == "" || v[0] < '0' || v[0] > '9' {
		return ""
	}
	if !semver.IsValid("v" + v) {
		return ""
	}
	return "v" + v
}

// isNewer reports whether v1 is a newer release than v2. Dev
// builds never count as outdated.
func isNewer(v1, v2 string) bool {
	sv1 := normalize(v1)
	sv2 := normalize(v2)
	if sv1 == "" || sv2 == "" {
		return false
	}
	return semver.Compare(sv1, sv2) > 0
}
