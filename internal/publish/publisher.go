package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	appcfg "github.com/tabdulradi/pan-tut/internal/config"
)

// GitPublisher commits the artifact tree onto a publish branch and, when a
// remote is configured, pushes it. The artifact directory itself becomes the
// repository worktree, so the published history contains only rendered output.
type GitPublisher struct {
	cfg appcfg.PublishConfig
}

// NewGitPublisher creates a publisher from the publish configuration.
func NewGitPublisher(cfg appcfg.PublishConfig) *GitPublisher { return &GitPublisher{cfg: cfg} }

// Publish stages everything under artifactDir and commits it with the given
// message. A worktree with no changes publishes nothing and is not an error.
func (p *GitPublisher) Publish(ctx context.Context, artifactDir, message string) error {
	repo, err := p.openOrInit(artifactDir)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		slog.Info("Nothing to publish, worktree unchanged", "dir", artifactDir)
		return nil
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage artifacts: %w", err)
	}

	commit, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.authorName(),
			Email: p.cfg.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit artifacts: %w", err)
	}
	slog.Info("Artifacts committed", "commit", commit.String()[:8], "branch", p.cfg.Branch)

	if p.cfg.Remote == "" {
		return nil
	}
	return p.push(ctx, repo)
}

func (p *GitPublisher) authorName() string {
	if p.cfg.Author != "" {
		return p.cfg.Author
	}
	return "pantut"
}

// openOrInit opens the artifact repository, initializing it on the publish
// branch when the directory is not yet a repository.
func (p *GitPublisher) openOrInit(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open publish repository: %w", err)
	}

	repo, err = git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("init publish repository: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(p.cfg.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set publish branch: %w", err)
	}
	slog.Debug("Initialized publish repository", "dir", dir, "branch", p.cfg.Branch)
	return repo, nil
}

func (p *GitPublisher) push(ctx context.Context, repo *git.Repository) error {
	if _, err := repo.Remote(git.DefaultRemoteName); err != nil {
		if !errors.Is(err, git.ErrRemoteNotFound) {
			return fmt.Errorf("inspect remote: %w", err)
		}
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
			Name: git.DefaultRemoteName,
			URLs: []string{p.cfg.Remote},
		})
		if err != nil {
			return fmt.Errorf("create remote: %w", err)
		}
	}

	branch := plumbing.NewBranchReferenceName(p.cfg.Branch)
	pushOptions := &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(branch + ":" + branch)},
		Force:      true, // published history is rewritten, never merged
	}
	if p.cfg.Token != "" {
		pushOptions.Auth = &githttp.BasicAuth{Username: p.authorName(), Password: p.cfg.Token}
	}

	err := repo.PushContext(ctx, pushOptions)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		slog.Info("Remote already up to date", "remote", p.cfg.Remote)
		return nil
	}
	if err != nil {
		return fmt.Errorf("push to %s: %w", p.cfg.Remote, err)
	}
	slog.Info("Artifacts pushed", "remote", p.cfg.Remote, "branch", p.cfg.Branch)
	return nil
}
