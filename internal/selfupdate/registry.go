package selfupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/httputil"
)

// Registry answers "what is the latest published release of this
// agent". Injected so the coordinator can be tested offline.
type Registry interface {
	LatestRelease(ctx context.Context) (tag string, err error)
}

// GitHubRegistry reads the latest-release endpoint of a GitHub-style
// API: a JSON document whose tag_name field carries the release tag.
type GitHubRegistry struct {
	Client *http.Client
	URL    string
}

type releaseInfo struct {
	TagName string `json:"tag_name"`
}

// LatestRelease fetches and decodes the latest release tag.
func (r *GitHubRegistry) LatestRelease(ctx context.Context) (string, error) {
	resp, err := httputil.Get(ctx, r.Client, r.URL, httputil.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch latest release: status %d", resp.StatusCode)
	}

	var info releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode release info: %w", err)
	}
	if info.TagName == "" {
		return "", fmt.Errorf("release info has no tag_name")
	}
	return info.TagName, nil
}
