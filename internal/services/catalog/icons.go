package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifeed/manifeed/internal/models"
)

// iconDirectory is where the catalog repository keeps company icons
const iconDirectory = "img"

// ResolveIconPath maps a requested icon path onto a file inside the catalog
// clone. Traversal attempts, non-SVG files and anything outside the clone
// resolve to models.ErrIconNotFound.
func (s *Service) ResolveIconPath(iconURL string) (string, error) {
	iconURL = strings.TrimSpace(iconURL)
	if iconURL == "" {
		return "", fmt.Errorf("%w: icon path is empty", models.ErrIconNotFound)
	}

	relative := strings.TrimLeft(iconURL, "/")
	if filepath.IsAbs(relative) || containsDotDot(relative) {
		return "", fmt.Errorf("%w: icon path is invalid", models.ErrIconNotFound)
	}

	if first, _, _ := strings.Cut(relative, "/"); first != iconDirectory {
		relative = iconDirectory + "/" + relative
	}

	repositoryPath, err := filepath.Abs(s.repository.Path())
	if err != nil {
		return "", fmt.Errorf("%w: icon path is invalid", models.ErrIconNotFound)
	}
	resolved := filepath.Clean(filepath.Join(repositoryPath, filepath.FromSlash(relative)))
	if resolved != repositoryPath && !strings.HasPrefix(resolved, repositoryPath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: icon path is invalid", models.ErrIconNotFound)
	}

	if strings.ToLower(filepath.Ext(resolved)) != ".svg" {
		return "", fmt.Errorf("%w: only svg icons are supported", models.ErrIconNotFound)
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: icon not found: %s", models.ErrIconNotFound, iconURL)
	}
	return resolved, nil
}

func containsDotDot(relative string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relative), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
