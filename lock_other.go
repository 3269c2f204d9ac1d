//go:build !unix

package certbatch

// lockFile is a no-op where flock is unavailable; in-process writers are
// still serialized by the batch executor.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
