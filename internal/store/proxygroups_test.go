// ABOUTME: ProxyGroup entity tests including the deletion cascade
// ABOUTME: Covers kind validation, renames and subscription resource cleanup

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateProxyGroup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.CreateProxyGroup(ctx, "manual-group", ProxyGroupManual)
	require.NoError(t, err)

	group, err := store.GetProxyGroup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "manual-group", group.Name)
	assert.Equal(t, ProxyGroupManual, group.Kind)
	assert.False(t, group.CreatedAt.IsZero())
}

func TestStore_CreateProxyGroup_InvalidKind(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CreateProxyGroup(context.Background(), "bad", ProxyGroupKind("automatic"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestStore_CreateProxyGroup_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateProxyGroup(ctx, "group", ProxyGroupManual)
	require.NoError(t, err)

	_, err = store.CreateProxyGroup(ctx, "group", ProxyGroupSubscription)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestStore_GetProxyGroup_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetProxyGroup(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetAllProxyGroups(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.CreateProxyGroup(ctx, "first", ProxyGroupManual)
	require.NoError(t, err)
	_, err = store.CreateProxyGroup(ctx, "second", ProxyGroupManual)
	require.NoError(t, err)

	groups, err := store.GetAllProxyGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "first", groups[0].Name)
	assert.Equal(t, "second", groups[1].Name)
}

func TestStore_RenameProxyGroup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.CreateProxyGroup(ctx, "old-name", ProxyGroupManual)
	require.NoError(t, err)

	require.NoError(t, store.RenameProxyGroup(ctx, id, "new-name"))

	group, err := store.GetProxyGroup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new-name", group.Name)

	err = store.RenameProxyGroup(ctx, 999, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteProxyGroup_CascadesToProxies(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.CreateProxyGroup(ctx, "group", ProxyGroupManual)
	require.NoError(t, err)
	_, err = store.CreateProxy(ctx, id, "a", []byte("{}"), 1)
	require.NoError(t, err)
	_, err = store.CreateProxy(ctx, id, "b", []byte("{}"), 1)
	require.NoError(t, err)

	require.NoError(t, store.DeleteProxyGroup(ctx, id))

	_, err = store.GetProxyGroup(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	proxies, err := store.GetProxiesByGroup(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func TestStore_DeleteProxyGroup_RemovesSubscriptionResource(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	groupID, err := store.CreateSubscriptionGroup(ctx, "airport", "clash", "https://example.test/sub")
	require.NoError(t, err)

	sub, err := store.QuerySubscription(ctx, groupID)
	require.NoError(t, err)

	require.NoError(t, store.DeleteProxyGroup(ctx, groupID))

	// The group, its subscription and its now-unreferenced resource are gone
	_, err = store.QuerySubscription(ctx, groupID)
	assert.ErrorIs(t, err, ErrNotFound)

	resources, err := store.GetAllResources(ctx)
	require.NoError(t, err)
	for _, r := range resources {
		assert.NotEqual(t, sub.ResourceID, r.ID)
	}
}

func TestStore_DeleteProxyGroup_PlainGroupLeavesResourcesAlone(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	resID, err := store.CreateResourceWithURL(ctx, "geoip", "geoip", "geoip.dat", "https://example.test/geoip.dat")
	require.NoError(t, err)

	groupID, err := store.CreateProxyGroup(ctx, "manual", ProxyGroupManual)
	require.NoError(t, err)

	require.NoError(t, store.DeleteProxyGroup(ctx, groupID))

	resources, err := store.GetAllResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, resID, resources[0].ID)
}

func TestStore_DeleteProxyGroup_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteProxyGroup(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
