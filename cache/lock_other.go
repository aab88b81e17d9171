//go:build !unix

package cache

// lockFile is a no-op where flock is unavailable; builds are still
// collapsed within one process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
