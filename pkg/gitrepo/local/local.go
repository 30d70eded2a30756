// Package local provides a filesystem-backed repository implementation for
// local development and tests. Commit shas are content digests chained to
// the previous head, so write ordering is observable the same way it is
// against a real Git host.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/promion/pkg/gitrepo"
)

const headFile = ".promion-head"

// Repository implements gitrepo.Repository on a local directory.
type Repository struct {
	root string
	mu   sync.Mutex
}

// NewRepository creates a repository rooted at the given directory, creating
// it if needed. A "local://" URL prefix is accepted and stripped.
func NewRepository(root string) (*Repository, error) {
	cleanRoot := strings.Replace(root, "local://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository root %s: %w", cleanRoot, err)
	}

	return &Repository{root: cleanRoot}, nil
}

func (r *Repository) ReadFile(_ context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(r.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &gitrepo.RepositoryError{Op: "ReadFile", Path: path, Err: gitrepo.ErrFileNotFound}
		}

		return nil, &gitrepo.RepositoryError{Op: "ReadFile", Path: path, Err: err}
	}

	return content, nil
}

func (r *Repository) WriteFile(_ context.Context, path string, content []byte, message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.write(path, content, message)
}

func (r *Repository) CreateFile(_ context.Context, path string, content []byte, message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.resolve(path)); err == nil {
		return "", &gitrepo.RepositoryError{Op: "CreateFile", Path: path, Err: gitrepo.ErrFileAlreadyExists}
	}

	return r.write(path, content, message)
}

func (r *Repository) FileExists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(r.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, &gitrepo.RepositoryError{Op: "FileExists", Path: path, Err: err}
	}

	return true, nil
}

func (r *Repository) ListDir(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(r.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, &gitrepo.RepositoryError{Op: "ListDir", Path: path, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == headFile {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

func (r *Repository) GetRef(_ context.Context) (string, error) {
	head, err := os.ReadFile(filepath.Join(r.root, headFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}

		return "", &gitrepo.RepositoryError{Op: "GetRef", Path: headFile, Err: err}
	}

	return strings.TrimSpace(string(head)), nil
}

func (r *Repository) UpdateRef(ctx context.Context, sha, expectedSHA string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.GetRef(ctx)
	if err != nil {
		return err
	}

	if current != expectedSHA {
		return &gitrepo.RepositoryError{Op: "UpdateRef", Path: headFile, Err: gitrepo.ErrRefConflict}
	}

	return r.setHead(sha)
}

// write commits content at path and advances the head. Caller holds the lock.
func (r *Repository) write(path string, content []byte, message string) (string, error) {
	target := r.resolve(path)

	err := os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return "", &gitrepo.RepositoryError{Op: "WriteFile", Path: path, Err: err}
	}

	err = os.WriteFile(target, content, 0o644)
	if err != nil {
		return "", &gitrepo.RepositoryError{Op: "WriteFile", Path: path, Err: err}
	}

	parent, _ := os.ReadFile(filepath.Join(r.root, headFile))
	sha := commitSHA(path, content, message, strings.TrimSpace(string(parent)))

	err = r.setHead(sha)
	if err != nil {
		return "", err
	}

	return sha, nil
}

func (r *Repository) setHead(sha string) error {
	err := os.WriteFile(filepath.Join(r.root, headFile), []byte(sha+"\n"), 0o644)
	if err != nil {
		return &gitrepo.RepositoryError{Op: "UpdateRef", Path: headFile, Err: err}
	}

	return nil
}

func (r *Repository) resolve(path string) string {
	return filepath.Join(r.root, filepath.FromSlash(path))
}

func commitSHA(path string, content []byte, message, parent string) string {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%s\n%s\n%s\n", parent, path, message)
	hasher.Write(content)

	return hex.EncodeToString(hasher.Sum(nil))
}
