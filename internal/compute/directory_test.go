package compute_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-query/internal/compute"
	"duck-query/internal/testutil"
)

func TestDirectory_ProviderID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("binding_wins_over_default", func(t *testing.T) {
		t.Parallel()
		repo := &testutil.MockBindingRepo{}
		_, err := repo.Bind(ctx, "file:///a.sql", "warehouse")
		require.NoError(t, err)

		dir := compute.NewDirectory(repo, "local")
		id, err := dir.ProviderID(ctx, "file:///a.sql")
		require.NoError(t, err)
		assert.Equal(t, "warehouse", id)

		id, err = dir.ProviderID(ctx, "file:///b.sql")
		require.NoError(t, err)
		assert.Equal(t, "local", id)
	})

	t.Run("no_binding_no_default", func(t *testing.T) {
		t.Parallel()
		dir := compute.NewDirectory(&testutil.MockBindingRepo{}, "")
		id, err := dir.ProviderID(ctx, "file:///a.sql")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("nil_repository_uses_default", func(t *testing.T) {
		t.Parallel()
		dir := compute.NewDirectory(nil, "local")
		id, err := dir.ProviderID(ctx, "file:///a.sql")
		require.NoError(t, err)
		assert.Equal(t, "local", id)
	})

	t.Run("repository_error", func(t *testing.T) {
		t.Parallel()
		repo := &testutil.MockBindingRepo{GetErr: errors.New("disk I/O error")}
		dir := compute.NewDirectory(repo, "local")
		_, err := dir.ProviderID(ctx, "file:///a.sql")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk I/O error")
	})
}
