// Records registry changes as commits in a git repository using go-git.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	historyName  = "modelprov"
	historyEmail = "modelprov@localhost"
)

// Commit is one entry of the registry history.
type Commit struct {
	Hash       string    `json:"hash"`
	Message    string    `json:"message"`
	Author     string    `json:"author"`
	AuthorDate time.Time `json:"authorDate"`
}

// History commits catalog and artifact changes to a git repository rooted at
// the data directory. The usage ledger is never committed.
type History struct {
	dir  string
	repo *gogit.Repository
	mu   sync.Mutex
}

// OpenHistory opens the repository in dir, initializing it if needed.
//
// ignored lists paths relative to dir that must never be committed.
func OpenHistory(dir string, ignored ...string) (*History, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = historyName
		cfg.User.Email = historyEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	h := &History{dir: dir, repo: repo}
	if err := h.writeIgnore(ignored); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *History) writeIgnore(ignored []string) error {
	lines := []string{"*.lock", "*.tmp", tmpDirName + "/"}
	for _, p := range ignored {
		lines = append(lines, "/"+filepath.ToSlash(p))
	}
	data := []byte(strings.Join(lines, "\n") + "\n")
	path := filepath.Join(h.dir, ".gitignore")
	if old, err := os.ReadFile(path); err == nil && string(old) == string(data) { //nolint:gosec // G304: path is constructed from dir
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // G306: .gitignore is not sensitive
		return fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return nil
}

// Commit stages files, which must live under the repository root, and
// commits them with author as the commit author. Nothing is committed when
// the files are unchanged.
func (h *History) Commit(ctx context.Context, author, msg string, files ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		rel, err := h.rel(f)
		if err != nil {
			return err
		}
		if _, err := w.Add(rel); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}
	staged := false
	for _, s := range status {
		if s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return nil
	}

	if author == "" {
		author = historyName
	}
	now := time.Now()
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author:    &object.Signature{Name: author, Email: historyEmail, When: now},
		Committer: &object.Signature{Name: historyName, Email: historyEmail, When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (h *History) rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(h.dir, abs)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside of %s", path, h.dir)
	}
	return filepath.ToSlash(rel), nil
}

// Log returns up to n most recent commits, newest first.
func (h *History) Log(n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	iter, err := h.repo.Log(&gogit.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// No commits yet.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read git log: %w", err)
	}
	defer iter.Close()
	var out []Commit
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read git log: %w", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, Commit{
			Hash:       c.Hash.String(),
			Message:    subject,
			Author:     c.Author.Name,
			AuthorDate: c.Author.When,
		})
	}
	return out, nil
}
