package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/models"
)

// catalogFileExtension restricts sync and change detection to catalog files
const catalogFileExtension = ".json"

// Repository manages the local clone of the catalog git repository. All git
// operations shell out to the git binary on PATH.
type Repository struct {
	url    string
	branch string
	path   string
	logger arbor.ILogger
}

// NewRepository creates a repository manager for the given remote and local path
func NewRepository(url, branch, path string, logger arbor.ILogger) *Repository {
	return &Repository{
		url:    url,
		branch: branch,
		path:   path,
		logger: logger,
	}
}

// Path returns the local clone path
func (r *Repository) Path() string {
	return r.path
}

// Sync brings the local clone up to date with the remote branch and reports
// which catalog files changed. A fresh clone reports every catalog file, an
// update reports the files touched between the old and new revisions.
func (r *Repository) Sync(ctx context.Context) (*models.RepositorySyncRead, error) {
	action, oldRevision, newRevision, err := r.pullOrClone(ctx)
	if err != nil {
		return nil, err
	}

	changedFiles := []string{}
	switch action {
	case models.RepositoryActionCloned:
		changedFiles, err = r.ListCatalogFiles()
	case models.RepositoryActionUpdate:
		changedFiles, err = r.changedFiles(ctx, oldRevision, newRevision)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("action", string(action)).
		Str("path", r.path).
		Int("changed_files", len(changedFiles)).
		Msg("Catalog repository synced")

	return &models.RepositorySyncRead{
		Action:         action,
		RepositoryPath: r.path,
		ChangedFiles:   changedFiles,
	}, nil
}

// pullOrClone clones the repository when the local path is missing or empty,
// otherwise fetches and fast-forwards the tracked branch. Returns the action
// taken plus the revisions before and after.
func (r *Repository) pullOrClone(ctx context.Context) (models.RepositoryAction, string, string, error) {
	missing, err := r.missingOrEmpty()
	if err != nil {
		return "", "", "", err
	}

	if missing {
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			return "", "", "", fmt.Errorf("%w: create clone parent: %v", models.ErrRepositorySync, err)
		}
		if _, err := r.runGit(ctx, "", "clone", "--branch", r.branch, r.url, r.path); err != nil {
			return "", "", "", err
		}
		revision, err := r.runGit(ctx, r.path, "rev-parse", "HEAD")
		if err != nil {
			return "", "", "", err
		}
		return models.RepositoryActionCloned, "", revision, nil
	}

	if _, err := os.Stat(filepath.Join(r.path, ".git")); err != nil {
		return "", "", "", fmt.Errorf("%w: path exists but is not a git repository: %s", models.ErrRepositorySync, r.path)
	}

	if err := r.validateRemote(ctx); err != nil {
		return "", "", "", err
	}
	if _, err := r.runGit(ctx, r.path, "fetch", "origin", r.branch); err != nil {
		return "", "", "", err
	}

	oldRevision, err := r.runGit(ctx, r.path, "rev-parse", "HEAD")
	if err != nil {
		return "", "", "", err
	}
	remoteRevision, err := r.runGit(ctx, r.path, "rev-parse", "origin/"+r.branch)
	if err != nil {
		return "", "", "", err
	}
	if oldRevision == remoteRevision {
		return models.RepositoryActionUpToDate, oldRevision, remoteRevision, nil
	}

	if _, err := r.runGit(ctx, r.path, "checkout", r.branch); err != nil {
		return "", "", "", err
	}
	if _, err := r.runGit(ctx, r.path, "pull", "--ff-only", "origin", r.branch); err != nil {
		return "", "", "", err
	}
	newRevision, err := r.runGit(ctx, r.path, "rev-parse", "HEAD")
	if err != nil {
		return "", "", "", err
	}
	return models.RepositoryActionUpdate, oldRevision, newRevision, nil
}

// validateRemote refuses to pull when the clone tracks a different remote
func (r *Repository) validateRemote(ctx context.Context) error {
	currentURL, err := r.runGit(ctx, r.path, "config", "--get", "remote.origin.url")
	if err != nil {
		return err
	}
	if currentURL != r.url {
		return fmt.Errorf("%w: remote mismatch for %s: expected %s, got %s",
			models.ErrRepositorySync, r.path, r.url, currentURL)
	}
	return nil
}

// changedFiles lists the catalog files touched between two revisions
func (r *Repository) changedFiles(ctx context.Context, oldRevision, newRevision string) ([]string, error) {
	output, err := r.runGit(ctx, r.path, "diff", "--name-only", oldRevision, newRevision)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	files := []string{}
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || !strings.HasSuffix(name, catalogFileExtension) {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// ListCatalogFiles walks the clone and returns every catalog file as a path
// relative to the repository root, sorted. The .git directory is skipped.
func (r *Repository) ListCatalogFiles() ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(r.path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), catalogFileExtension) {
			return nil
		}
		relative, err := filepath.Rel(r.path, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list catalog files: %v", models.ErrRepositorySync, err)
	}
	sort.Strings(files)
	return files, nil
}

// missingOrEmpty reports whether the clone path does not exist yet or is an
// empty directory, both of which call for a fresh clone.
func (r *Repository) missingOrEmpty() (bool, error) {
	entries, err := os.ReadDir(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read clone path: %v", models.ErrRepositorySync, err)
	}
	return len(entries) == 0, nil
}

// runGit executes a git command and returns its trimmed stdout. A non-empty
// dir runs the command inside that directory.
func (r *Repository) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: git %s: %s", models.ErrRepositorySync, strings.Join(args, " "), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}
