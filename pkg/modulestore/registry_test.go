package modulestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PullImage_RejectsBadReference(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.PullImage(context.Background(), "this is not a reference::")
	assert.ErrorIs(t, err, ErrPullImage)
}
