// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

const (
	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/debugify"

	// GitHubAPIURL is the GitHub API endpoint for latest release
	GitHubAPIURL = "https://api.github.com/repos/%s/releases/latest"
)

// Version is the current version of debugify. Release builds override it and
// Commit with -ldflags "-X".
var (
	Version = "0.1.0"
	Commit  = ""
)

// String describes the build for `debugify version`.
func String() string {
	s := "debugify version " + Version
	if Commit != "" {
		s += " (" + Commit + ")"
	}
	return s + " " + runtime.GOOS + "/" + runtime.GOARCH
}

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// UpdateMessage returns a human-readable message about the update, or "".
func (u *UpdateInfo) UpdateMessage() string {
	if !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("debugify v%s is available (current: v%s): %s", u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// githubRelease represents the GitHub API response for a release
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdates asks url (GitHubAPIURL for this repository when empty) for
// the latest release.
func CheckForUpdates(ctx context.Context, url string) (*UpdateInfo, error) {
	if url == "" {
		url = fmt.Sprintf(GitHubAPIURL, GitHubRepo)
	}
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "debugify/"+Version)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: compareVersions(Version, latest) < 0,
		ReleaseURL:      release.HTMLURL,
	}, nil
}

// compareVersions compares two semver strings
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func compareVersions(v1, v2 string) int {
	parse := func(v string) [3]int {
		var out [3]int
		parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
		for i, part := range parts {
			// "1.0.0-beta" compares as 1.0.0
			part = strings.SplitN(part, "-", 2)[0]
			fmt.Sscanf(part, "%d", &out[i])
		}
		return out
	}

	a, b := parse(v1), parse(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}
