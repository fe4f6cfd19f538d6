package selfupdate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/httputil"
)

// fetchArtifact downloads the release artifact into a temp file next to
// the destination, so the final rename stays on one volume. The caller
// removes the temp file on all exit paths.
func fetchArtifact(ctx context.Context, client *http.Client, url, dir string) (string, error) {
	path, err := httputil.DownloadToTemp(ctx, client, url, dir, "nb-update-agent-*", httputil.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("fetch artifact: %w", err)
	}
	return path, nil
}

// replaceArtifact swaps the downloaded artifact into place. On Windows
// the running binary cannot be overwritten, but it can be renamed; the
// current file moves aside to ".old" first. The stale ".old" from a
// previous update is removed opportunistically.
func replaceArtifact(newPath, binaryPath string) error {
	if runtime.GOOS == "windows" {
		oldPath := binaryPath + ".old"
		os.Remove(oldPath)
		if err := os.Rename(binaryPath, oldPath); err != nil {
			return fmt.Errorf("move current binary aside: %w", err)
		}
	}

	if err := os.Rename(newPath, binaryPath); err != nil {
		// Cross-device rename can fail; fall back to a copy.
		if copyErr := copyFile(newPath, binaryPath); copyErr != nil {
			return fmt.Errorf("replace binary: %w", copyErr)
		}
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(binaryPath, 0o755); err != nil {
			return fmt.Errorf("set executable permission: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
