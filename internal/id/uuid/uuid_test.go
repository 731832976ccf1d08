package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	gen := New()
	raw, err := gen.NewID()
	require.NoError(t, err)

	parsed, err := goUUID.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestNewIDsAreUniqueAndTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	// v7 IDs sort by creation time, which latest-row queries depend on.
	require.Less(t, first, second)
}
