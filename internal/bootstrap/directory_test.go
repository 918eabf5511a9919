package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "foodtrace/pkg/domain-errors"
)

func TestDirectoryRegisterAndLookup(t *testing.T) {
	d := NewDirectory()
	farm := &System{}
	dairy := &System{}

	require.NoError(t, d.Register("farm", farm))
	require.NoError(t, d.Register("dairy", dairy))

	got, err := d.Lookup("farm")
	require.NoError(t, err)
	assert.Same(t, farm, got)

	assert.Equal(t, []string{"dairy", "farm"}, d.Names())
}

func TestDirectoryRejectsBadRegistrations(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Register("farm", &System{}))

	err := d.Register("farm", &System{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))

	err = d.Register("", &System{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = d.Lookup("unknown")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
