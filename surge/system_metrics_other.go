//go:build !linux

package surge

import (
	"github.com/not-mt/zapd/errors"
)

// getMemoryStats is not implemented on this platform; the memory guard
// disables itself and metrics report zero memory figures.
func getMemoryStats() (total uint64, available uint64, err error) {
	return 0, 0, errors.New("memory stats not supported on this platform")
}
