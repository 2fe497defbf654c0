//go:build !unix

package imageio

import "os"

// readBytes falls back to the standard library on non-unix targets.
// The byte-safety guarantee that matters for the evaluator — decoding
// happens from an in-memory buffer, never by handing a path string to
// an image decoder — still holds.
func readBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}
