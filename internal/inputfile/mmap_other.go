//go:build !unix

package inputfile

import (
	"errors"
	"os"
)

func mapFile(f *os.File, size int64) ([]byte, func([]byte) error, error) {
	return nil, nil, errors.New("mmap not supported")
}
