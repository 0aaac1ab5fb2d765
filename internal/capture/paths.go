package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Artifact directories under the media root.
const (
	DirImageOriginals   = "img/originals"
	DirImagePredictions = "img/predictions"
	DirVideoOriginals   = "vid/originals"
)

const timestampLayout = "20060102150405"

// ArtifactPath builds the canonical artifact path
// {root}/{dir}/{slug}_{YYYYMMDDHHMMSS}{ext} and creates parent
// directories on demand. The second-resolution timestamp keeps names
// idempotent per probe, collision-resistant across webcams and
// sortable by capture time.
func ArtifactPath(root, dir, slug string, ts time.Time, ext string) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s_%s%s", slug, ts.Format(timestampLayout), ext)
	path := filepath.Join(root, dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return path, nil
}
