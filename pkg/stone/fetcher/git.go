package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jamesainslie/stone/pkg/stone/logging"
	"github.com/jamesainslie/stone/pkg/stone/types"
)

var fetchRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/remotes/origin/*",
	"+refs/tags/*:refs/tags/*",
}

// GitFetcher mirrors git sources using go-git. Checkouts are left on a
// detached HEAD at the requested reference.
type GitFetcher struct{}

// NewGitFetcher returns a git fetcher.
func NewGitFetcher() *GitFetcher {
	return &GitFetcher{}
}

// FetchFresh implements Fetcher.
func (g *GitFetcher) FetchFresh(ctx context.Context, desc *types.Descriptor, targetDir string) error {
	log := logging.Get("fetcher")
	log.Debug("cloning", "package", desc.Name, "url", desc.Source.URL, "dir", targetDir)

	if err := resetDir(targetDir); err != nil {
		return err
	}

	repo, err := git.PlainCloneContext(ctx, targetDir, false, &git.CloneOptions{
		URL:        desc.Source.URL,
		NoCheckout: true,
		Tags:       git.AllTags,
	})
	if err != nil {
		return fmt.Errorf("cloning %s: %w", desc.Source.URL, err)
	}

	return checkout(repo, desc)
}

// FetchIncremental implements Fetcher.
func (g *GitFetcher) FetchIncremental(ctx context.Context, old, desc *types.Descriptor, targetDir string) error {
	log := logging.Get("fetcher")

	repo, err := git.PlainOpen(targetDir)
	if err != nil {
		log.Warn("no usable checkout, cloning again", "package", desc.Name, "dir", targetDir, "error", err)
		return g.FetchFresh(ctx, desc, targetDir)
	}

	if err := setOrigin(repo, desc.Source.URL); err != nil {
		return err
	}

	log.Debug("fetching", "package", desc.Name, "from", old.ShortReference(), "to", desc.ShortReference())
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   fetchRefSpecs,
		Tags:       git.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", desc.Source.URL, err)
	}

	return checkout(repo, desc)
}

// setOrigin points the origin remote at url, recreating it when it differs.
func setOrigin(repo *git.Repository, url string) error {
	remote, err := repo.Remote(git.DefaultRemoteName)
	switch {
	case err == nil:
		urls := remote.Config().URLs
		if len(urls) == 1 && urls[0] == url {
			return nil
		}
		if err := repo.DeleteRemote(git.DefaultRemoteName); err != nil {
			return fmt.Errorf("removing origin: %w", err)
		}
	case !errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("reading origin: %w", err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name:  git.DefaultRemoteName,
		URLs:  []string{url},
		Fetch: fetchRefSpecs[:1],
	})
	if err != nil {
		return fmt.Errorf("creating origin: %w", err)
	}
	return nil
}

func checkout(repo *git.Repository, desc *types.Descriptor) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(desc.Source.Reference))
	if err != nil {
		return fmt.Errorf("reference %s of %s: %w", desc.ShortReference(), desc.Name, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", desc.ShortReference(), err)
	}
	return nil
}

// Head returns the commit a checkout is on, or an error if dir is not a
// git checkout.
func Head(dir string) (string, error) {
	if !isDir(dir) {
		return "", os.ErrNotExist
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}
