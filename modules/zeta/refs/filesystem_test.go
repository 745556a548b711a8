package refs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/vcsflow/stacker/modules/plumbing"
)

func TestBackend(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "repo.stacker")
	_ = os.MkdirAll(repoPath, 0755)
	b := NewBackend(repoPath)
	refs := []string{
		"refs/heads/mainline",
		"refs/heads/dev",
		"refs/tags/v1.0.0",
		"refs/remotes/origin/master",
	}
	for _, r := range refs {
		err := b.Update(plumbing.NewHashReference(plumbing.ReferenceName(r), plumbing.NewHash("adba50d9794b9ef3f7ec8cbc680f7f1fa3fbf9df")), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	if err := b.Packed(); err != nil {
		fmt.Fprintf(os.Stderr, "packed refs error: %v\n", err)
		return
	}
	_ = b.Update(plumbing.NewHashReference(plumbing.ReferenceName("refs/heads/dev"), plumbing.NewHash("d84149926219c5a85da48051f2b3ad296f3ade3")), nil)
}

func TestRemove(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "repo.stacker")
	_ = os.MkdirAll(repoPath, 0755)
	b := NewBackend(repoPath)
	_ = b.Update(plumbing.NewHashReference(plumbing.ReferenceName("refs/heads/dev"), plumbing.NewHash("d84149926219c5a85da48051f2b3ad296f3ade3")), nil)
	_ = b.ReferenceRemove(plumbing.NewHashReference(plumbing.ReferenceName("refs/heads/dev"), plumbing.NewHash("d84149926219c5a85da48051f2b3ad296f3ade3")))
}
