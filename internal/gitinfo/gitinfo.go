// Package gitinfo reads the HEAD commit of the project for the COMMIT
// constant injected into bundles.
package gitinfo

import (
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// ShortLen is the length of an abbreviated commit hash.
const ShortLen = 7

// Info describes the HEAD of a repository.
type Info struct {
	Commit string
	Branch string
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.Commit) <= ShortLen {
		return i.Commit
	}
	return i.Commit[:ShortLen]
}

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Head returns HEAD of the repository containing dir. Parent directories are
// searched for the .git directory.
func Head(dir string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Info{}, ErrNotRepository
	}
	if err != nil {
		return Info{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open git repository").
			WithContext("path", dir).Build()
	}
	ref, err := repo.Head()
	if err != nil {
		// A fresh repository without commits has no HEAD yet.
		return Info{}, ferrors.WrapError(err, ferrors.CategoryNotFound, "failed to resolve HEAD").
			WithContext("path", dir).Build()
	}
	info := Info{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		info.Branch = ref.Name().Short()
	}
	return info, nil
}

// ShortCommit returns the abbreviated HEAD hash, or "" when dir is not a
// repository or HEAD cannot be resolved.
func ShortCommit(dir string) string {
	info, err := Head(dir)
	if err != nil {
		if !errors.Is(err, ErrNotRepository) {
			slog.Debug("Commit unavailable", logfields.Path(dir), logfields.Error(err))
		}
		return ""
	}
	return info.Short()
}
