//go:build windows

package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/gajzzs/dropship/internal/errors"
)

func TestClassifyElevatedExit(t *testing.T) {
	assert.NoError(t, classifyElevatedExit(0))

	err := classifyElevatedExit(1)
	assert.True(t, errors.IsKind(err, errors.KindInternal))
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestShellExecuteInfoLayout(t *testing.T) {
	// SHELLEXECUTEINFOW is 112 bytes on 64-bit and 60 bytes on 32-bit
	want := uintptr(60)
	if unsafe.Sizeof(uintptr(0)) == 8 {
		want = 112
	}
	assert.Equal(t, want, unsafe.Sizeof(shellExecuteInfo{}))
}
