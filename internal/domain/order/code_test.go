package order

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeAllocator_Format(t *testing.T) {
	a := NewCodeAllocator(0)
	pattern := regexp.MustCompile(`^#[1-9][0-9]{5}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := a.Allocate(context.Background(), func(code string) (bool, error) {
			return seen[code], nil
		})
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestCodeAllocator_SkipsKnownTaken(t *testing.T) {
	a := NewCodeAllocator(4)
	a.intn = func(int) int { return 7 }

	var offered []string
	code, err := a.Allocate(context.Background(), func(code string) (bool, error) {
		offered = append(offered, code)
		return code == "#100007", nil
	})
	require.NoError(t, err)

	// The colliding code is offered once, then skipped until the fallback.
	assert.Equal(t, "#100007", offered[0])
	assert.Len(t, offered, 2)
	assert.Equal(t, code, offered[1])
	assert.NotEqual(t, "#100007", code)
}

func TestCodeAllocator_Cancelled(t *testing.T) {
	a := NewCodeAllocator(4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Allocate(ctx, func(string) (bool, error) { return false, nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestCodeAllocator_TryError(t *testing.T) {
	a := NewCodeAllocator(4)

	_, err := a.Allocate(context.Background(), func(string) (bool, error) { return false, errBoom })
	require.ErrorIs(t, err, errBoom)
}
