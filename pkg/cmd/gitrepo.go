package cmd

import (
	"fmt"

	"github.com/dukex/promion/pkg/gitrepo"
	"github.com/dukex/promion/pkg/gitrepo/local"
)

// NewGitRepository opens the snapshot repository rooted at gitRoot.
func NewGitRepository(gitRoot string) gitrepo.Repository {
	repo, err := local.NewRepository(gitRoot)
	if err != nil {
		panic(fmt.Errorf("failed to open git repository at %s: %w", gitRoot, err))
	}

	return repo
}
