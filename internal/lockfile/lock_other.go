//go:build !unix

package lockfile

import "os"

// No flock on these platforms; the lock degrades to advisory-by-existence.
// They are not primary targets.

func flockExclusive(f *os.File) error {
	return nil
}

func flockUnlock(f *os.File) error {
	return nil
}
