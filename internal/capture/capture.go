// Package capture reads the raw byte buffer a scan runs over. It does
// not parse packets or any capture-file framing: the whole file (or
// stdin) is the scan target, matching the spec's single-buffer,
// non-streaming scanning model.
package capture

import (
	"io"
	"os"
)

// Read loads the capture target at path. "-" reads from stdin.
func Read(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
