package versioning

import (
	"bytes"
	"context"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
)

// shortHashLen is git's minimum abbreviation. Longer prefixes are used when objects collide.
const shortHashLen = 7

// GitSource reads commit metadata from the repository containing Dir.
type GitSource struct {
	Dir string
}

func (g GitSource) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(g.Dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryGit, "open repository").
			Warning().
			WithContext("dir", g.Dir).
			Build()
	}
	return repo, nil
}

// CommitsSince implements Source. An empty base counts every commit reachable from HEAD.
func (g GitSource) CommitsSince(ctx context.Context, base string) (int, error) {
	repo, err := g.open()
	if err != nil {
		return 0, err
	}
	head, err := repo.Head()
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryGit, "resolve HEAD").Warning().Build()
	}

	excluded := map[plumbing.Hash]struct{}{}
	if base != "" {
		baseHash, err := repo.ResolveRevision(plumbing.Revision(base))
		if err != nil {
			return 0, ferrors.WrapError(err, ferrors.CategoryGit, "resolve base version").
				Warning().
				WithContext("base", base).
				Build()
		}
		if err := walk(ctx, repo, *baseHash, func(c *object.Commit) {
			excluded[c.Hash] = struct{}{}
		}); err != nil {
			return 0, err
		}
	}

	count := 0
	err = walk(ctx, repo, head.Hash(), func(c *object.Commit) {
		if _, ok := excluded[c.Hash]; !ok {
			count++
		}
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// HeadCommit implements Source.
func (g GitSource) HeadCommit(_ context.Context) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryGit, "resolve HEAD").Warning().Build()
	}
	hash := head.Hash()
	return abbreviate(hash, neighbours(repo, hash)), nil
}

// abbreviate shortens hash to the shortest prefix of at least shortHashLen digits that no
// other object shares.
func abbreviate(hash plumbing.Hash, others []plumbing.Hash) string {
	full := hash.String()
	n := shortHashLen
	for _, o := range others {
		if o == hash {
			continue
		}
		other := o.String()
		common := 0
		for common < len(full) && full[common] == other[common] {
			common++
		}
		n = max(n, common+1)
	}
	return full[:min(n, len(full))]
}

// neighbours lists the objects whose hash starts with the same bytes as hash, up to the
// minimum abbreviation. Lookup failures yield none.
func neighbours(repo *git.Repository, hash plumbing.Hash) []plumbing.Hash {
	prefix := hash[:(shortHashLen-1)/2]

	type prefixLookup interface {
		HashesWithPrefix(prefix []byte) ([]plumbing.Hash, error)
	}
	if pl, ok := repo.Storer.(prefixLookup); ok {
		if hashes, err := pl.HashesWithPrefix(prefix); err == nil {
			return hashes
		}
	}

	iter, err := repo.Storer.IterEncodedObjects(plumbing.AnyObject)
	if err != nil {
		return nil
	}
	defer iter.Close()
	var hashes []plumbing.Hash
	_ = iter.ForEach(func(o plumbing.EncodedObject) error {
		if h := o.Hash(); bytes.HasPrefix(h[:], prefix) {
			hashes = append(hashes, h)
		}
		return nil
	})
	return hashes
}

func walk(ctx context.Context, repo *git.Repository, from plumbing.Hash, visit func(*object.Commit)) error {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryGit, "read commit log").Warning().Build()
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		visit(c)
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryGit, "walk commit log").Warning().Build()
	}
	return nil
}
