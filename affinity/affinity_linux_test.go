//go:build linux
// +build linux

package affinity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedolphin/gafferchallenge/affinity"
)

func TestPinAndUnpin(t *testing.T) {
	allowed, err := affinity.CurrentCPUs()
	require.NoError(t, err)
	require.NotEmpty(t, allowed)

	var p affinity.Pinner
	cpu := allowed[0]
	require.NoError(t, p.Pin(cpu))

	got, err := affinity.CurrentCPUs()
	require.NoError(t, err)
	assert.Equal(t, []int{cpu}, got)

	// restricted containers may refuse widening the mask again
	_ = p.Unpin()
}

func TestPinOutOfRange(t *testing.T) {
	assert.Error(t, affinity.SetAffinity(1<<20))
	assert.Error(t, affinity.SetAffinity(-1))
}
