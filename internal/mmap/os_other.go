//go:build !unix

package mmap

import (
	"errors"
	"os"
)

// Supported reports whether writable file mappings are available on this platform.
const Supported = false

var errUnsupported = errors.New("mmap: writable mappings not supported on this platform")

func osMap(*os.File, int) ([]byte, func([]byte) error, error) {
	return nil, nil, errUnsupported
}

func osSync([]byte) error { return nil }

func osAdvise([]byte, AccessPattern) error { return nil }
