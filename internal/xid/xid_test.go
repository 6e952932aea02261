package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("snap")
	b := New("snap")

	assert.True(t, strings.HasPrefix(a, "snap-"))
	assert.Len(t, a, len("snap-")+32)
	assert.NotEqual(t, a, b)
	assert.Len(t, New(""), 32)
}
