package testenv

import (
	"fmt"

	"github.com/stretchr/testify/assert"
)

// BytesEqual asserts that actual bytes equals expected bytes.
// Unlike assert.Equal, a mismatch in a multi-megabyte mapping reports only the first differing offset.
func BytesEqual(a *assert.Assertions, expected, actual []byte, msgAndArgs ...any) bool {
	if len(expected) != len(actual) {
		return a.Fail(fmt.Sprintf("length mismatch: expected %d, actual %d", len(expected), len(actual)), msgAndArgs...)
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return a.Fail(fmt.Sprintf("first mismatch at %d: expected %02X, actual %02X", i, expected[i], actual[i]), msgAndArgs...)
		}
	}
	return true
}
