package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// validPackageID matches winget package identifiers ("NetBird.NetBird").
var validPackageID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,255}$`)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for values that would make a run
// nonsensical. Out-of-range numeric values are clamped rather than
// rejected so a sloppy config still produces a safe run.
func (c *Config) Validate() error {
	if c.PackageID == "" {
		return fmt.Errorf("package_id is required")
	}
	if !validPackageID.MatchString(c.PackageID) {
		return fmt.Errorf("package_id %q is not a valid package identifier", c.PackageID)
	}

	if c.DelayDays < 0 {
		c.DelayDays = 0
	}
	if c.StartJitterSeconds < 0 {
		c.StartJitterSeconds = 0
	}

	if lvl := strings.ToLower(c.Logging.Level); lvl != "" && !validLogLevels[lvl] {
		return fmt.Errorf("logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}

	if c.Secondary.Enabled {
		if err := checkHTTPURL("secondary.installer_url", c.Secondary.InstallerURL); err != nil {
			return err
		}
	}

	if c.SelfUpdate.Enabled {
		if err := checkHTTPURL("self_update.release_url", c.SelfUpdate.ReleaseURL); err != nil {
			return err
		}
		if c.SelfUpdate.SourceDir == "" {
			// Download strategy needs somewhere to fetch from.
			if !strings.Contains(c.SelfUpdate.ArtifactURL, "%s") {
				return fmt.Errorf("self_update.artifact_url must contain a %%s tag placeholder")
			}
			if err := checkHTTPURL("self_update.artifact_url", fmt.Sprintf(c.SelfUpdate.ArtifactURL, "0.0.0")); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q is not a valid URL: %w", field, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %q", field, u.Scheme)
	}
	return nil
}
