package cloudarchive

import (
	"context"
	"testing"

	"simcash/internal/simcore"

	"github.com/stretchr/testify/require"
)

func TestNew_NoBucketReturnsNilArchiver(t *testing.T) {
	a, err := New(context.Background(), Config{})
	require.NoError(t, err)
	require.Nil(t, a)
}

func TestNilArchiver_UploadsAreNoOps(t *testing.T) {
	var a *Archiver
	require.NoError(t, a.UploadCheckpoint(context.Background(), &simcore.Checkpoint{Tick: 1}))
	require.NoError(t, a.UploadEvents(context.Background(), nil))
}
