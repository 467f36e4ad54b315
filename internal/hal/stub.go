//go:build !linux

package hal

import "errors"

// OpenBoard is not available on non-Linux platforms.
func OpenBoard(cfg BoardConfig) (*Board, error) {
	return nil, errors.New("hal: not supported on this platform (requires Linux)")
}
