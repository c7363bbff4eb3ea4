package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/scalesep/internal/fsutil"
)

// readFloats reads a raw little-endian float32 file. When want is
// positive the file must hold exactly that many values.
func readFloats(path string, want int) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a whole number of float32 values", path, len(data))
	}
	n := len(data) / 4
	if want > 0 && n != want {
		return nil, fmt.Errorf("%s: holds %d values, want %d", path, n, want)
	}
	out := make([]float32, n)
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// writeFloats replaces path with vs as raw little-endian float32.
func writeFloats(path string, vs []float32) error {
	return fsutil.WriteAtomic(fsutil.OSFileSystem{}, path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := binary.Write(bw, binary.LittleEndian, vs); err != nil {
			return err
		}
		return bw.Flush()
	})
}

// readCodes reads a file of 16-bit codes in native little-endian order.
// Byte-swapped files are handled by the codec flags.
func readCodes(path string) ([]uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%s: odd size %d for 16-bit codes", path, len(data))
	}
	out := make([]uint16, len(data)/2)
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func writeCodes(path string, codes []uint16) error {
	return fsutil.WriteAtomic(fsutil.OSFileSystem{}, path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := binary.Write(bw, binary.LittleEndian, codes); err != nil {
			return err
		}
		return bw.Flush()
	})
}
