package testrunner

import (
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// resultLock is the per-(tree, command) exclusive lock spec.md §5 requires:
// pid-stamped so a stale lock from a dead process is visibly distinguishable
// (flock itself already refuses to hand out the lock to a live holder; the
// pid stamp is for human diagnosis, not correctness).
type resultLock struct {
	path string
	fl   *flock.Flock
}

func newResultLock(path string) *resultLock {
	return &resultLock{path: path, fl: flock.New(path)}
}

// tryLock attempts to acquire the lock without blocking. ok is false if
// another process currently holds it (AlreadyInProgress).
func (l *resultLock) tryLock() (ok bool, err error) {
	locked, err := l.fl.TryLock()
	if err != nil || !locked {
		return false, err
	}
	if err := os.WriteFile(l.path, fmt.Appendf(nil, "%d\n", os.Getpid()), 0o644); err != nil {
		_ = l.fl.Unlock()
		return false, err
	}
	return true, nil
}

func (l *resultLock) unlock() error {
	return l.fl.Unlock()
}
