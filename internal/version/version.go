/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build information and release checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"
)

// Build information, set at build time via ldflags:
//
//	-X github.com/friendsincode/timedimension/internal/version.Version=X.Y.Z
var (
	Version   = "0.4.0"
	Commit    = "dev"
	BuildDate = ""
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns the build information of the running binary.
func Current() Build {
	return Build{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func (b Build) String() string {
	return fmt.Sprintf("timedimension %s (%s, %s)", b.Version, b.Commit, b.GoVersion)
}

// UpdateInfo contains information about available releases.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	Feed            string    `json:"feed,omitempty"`
	CheckedAt       time.Time `json:"checked_at,omitempty"`
}

// CheckerConfig selects where releases are published.
type CheckerConfig struct {
	// Feed is "owner/repo" on GitHub or the URL of a JSON document shaped
	// like GitHub's latest-release response.
	Feed     string
	Interval time.Duration
}

// Checker periodically looks up the latest release.
type Checker struct {
	mu         sync.RWMutex
	info       UpdateInfo
	logger     zerolog.Logger
	interval   time.Duration
	feedURL    string
	httpClient *http.Client
}

// release is the subset of the latest-release document we read.
type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

var githubRepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// FeedURL resolves a feed setting to the URL that is polled.
func FeedURL(feed string) (string, error) {
	feed = strings.TrimSpace(feed)
	switch {
	case githubRepoPattern.MatchString(feed):
		return "https://api.github.com/repos/" + feed + "/releases/latest", nil
	case strings.HasPrefix(feed, "https://"), strings.HasPrefix(feed, "http://"):
		u, err := url.Parse(feed)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("release feed %q is not a valid URL", feed)
		}
		return u.String(), nil
	}
	return "", fmt.Errorf("release feed %q must be owner/repo or an http(s) URL", feed)
}

// NewChecker creates a release checker for cfg.Feed.
func NewChecker(cfg CheckerConfig, logger zerolog.Logger) (*Checker, error) {
	feedURL, err := FeedURL(cfg.Feed)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Checker{
		info:       UpdateInfo{CurrentVersion: Version, Feed: feedURL},
		logger:     logger.With().Str("component", "release-checker").Logger(),
		interval:   interval,
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Start checks immediately and then every interval until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.check(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

// Info returns the latest update information. A nil checker reports only
// the running version.
func (c *Checker) Info() UpdateInfo {
	if c == nil {
		return UpdateInfo{CurrentVersion: Version}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

func (c *Checker) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		c.logger.Debug().Err(err).Msg("build release request")
		return
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "timedimension/"+Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("fetch release feed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", resp.StatusCode).Str("feed", c.feedURL).Msg("unexpected release feed status")
		return
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		c.logger.Debug().Err(err).Msg("decode release feed")
		return
	}

	latest := strings.TrimPrefix(rel.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: compareVersions(Version, latest) < 0,
		ReleaseURL:      rel.HTMLURL,
		ReleaseNotes:    truncateNotes(rel.Body, 200),
		Feed:            c.feedURL,
		CheckedAt:       time.Now().UTC(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().Str("current", Version).Str("latest", latest).Str("url", rel.HTMLURL).Msg("new version available")
	}
}

// compareVersions orders two release versions, with or without a leading
// "v". Unparseable versions sort before valid ones.
func compareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

func canonical(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// truncateNotes keeps the first line of s, cut to maxLen.
func truncateNotes(s string, maxLen int) string {
	first, _, _ := strings.Cut(s, "\n")
	first = strings.TrimSpace(first)
	if len(first) > maxLen {
		return first[:maxLen-3] + "..."
	}
	return first
}
