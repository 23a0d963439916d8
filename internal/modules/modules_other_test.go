//go:build !windows

package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsupportedPlatform(t *testing.T) {
	assert.False(t, Supported)

	_, err := NewEnumerator().Modules()
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = NewResolver().Resolve("")
	assert.ErrorIs(t, err, ErrUnsupported)
}
