package pbtree

import "bytes"

// Compare orders keys as unsigned byte strings. A strict prefix sorts first.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func Equal(a, b []byte) bool {
	return bytes.Equal(a, b)
}
