// ABOUTME: Proxy entity tests covering ordering, windowed rotation and batch replacement
// ABOUTME: Rotation tests verify the order-value set is preserved exactly

package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestGroup(t *testing.T, store *SQLiteStore) int64 {
	t.Helper()
	id, err := store.CreateProxyGroup(context.Background(), "test-group", ProxyGroupManual)
	require.NoError(t, err)
	return id
}

// proxyNames returns the group's proxy names in list order.
func proxyNames(t *testing.T, store *SQLiteStore, groupID int64) []string {
	t.Helper()
	proxies, err := store.GetProxiesByGroup(context.Background(), groupID)
	require.NoError(t, err)
	names := make([]string, len(proxies))
	for i, p := range proxies {
		names[i] = p.Name
	}
	return names
}

// proxyOrders returns the group's order values in list order.
func proxyOrders(t *testing.T, store *SQLiteStore, groupID int64) []int64 {
	t.Helper()
	proxies, err := store.GetProxiesByGroup(context.Background(), groupID)
	require.NoError(t, err)
	orders := make([]int64, len(proxies))
	for i, p := range proxies {
		orders[i] = p.Order
	}
	return orders
}

func TestStore_CreateProxy_OrderAllocation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.CreateProxy(ctx, groupID, name, []byte("{}"), 1)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a", "b", "c"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 1, 2}, proxyOrders(t, store, groupID))
}

func TestStore_CreateProxy_AppendsAfterGap(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	ids := make(map[string]int64)
	for _, name := range []string{"a", "b", "c"} {
		id, err := store.CreateProxy(ctx, groupID, name, []byte("{}"), 1)
		require.NoError(t, err)
		ids[name] = id
	}

	// Deleting the tail leaves a gap; the next create must still land
	// strictly after the remaining maximum
	require.NoError(t, store.DeleteProxy(ctx, ids["b"]))

	_, err := store.CreateProxy(ctx, groupID, "d", []byte("{}"), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 2, 3}, proxyOrders(t, store, groupID))
}

func TestStore_CreateProxy_GroupNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CreateProxy(context.Background(), 999, "a", []byte("{}"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UpdateProxy_KeepsOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	id, err := store.CreateProxy(ctx, groupID, "a", []byte("{}"), 1)
	require.NoError(t, err)
	_, err = store.CreateProxy(ctx, groupID, "b", []byte("{}"), 1)
	require.NoError(t, err)

	err = store.UpdateProxy(ctx, id, "a-renamed", []byte(`{"v":2}`), 2)
	require.NoError(t, err)

	proxies, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	assert.Equal(t, "a-renamed", proxies[0].Name)
	assert.Equal(t, int64(0), proxies[0].Order)
	assert.Equal(t, uint16(2), proxies[0].ProxyVersion)
}

// gappedGroup builds a group whose surviving proxies carry orders 0, 10
// and 20 by bulk-inserting and pruning, mirroring a long-lived list.
func gappedGroup(t *testing.T, store *SQLiteStore) (int64, map[string]int64) {
	t.Helper()
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	keep := map[int64]string{0: "p1", 10: "p2", 20: "p3"}
	ids := make(map[string]int64)
	var all []int64
	for i := int64(0); i <= 20; i++ {
		id, err := store.CreateProxy(ctx, groupID, fmt.Sprintf("fill-%d", i), []byte("{}"), 1)
		require.NoError(t, err)
		all = append(all, id)
	}
	for i, id := range all {
		name, wanted := keep[int64(i)]
		if !wanted {
			require.NoError(t, store.DeleteProxy(ctx, id))
			continue
		}
		require.NoError(t, store.UpdateProxy(ctx, id, name, []byte("{}"), 1))
		ids[name] = id
	}

	require.Equal(t, []int64{0, 10, 20}, proxyOrders(t, store, groupID))
	return groupID, ids
}

func TestStore_ReorderProxies_RotateForward(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)

	err := store.ReorderProxies(context.Background(), groupID, 0, 20, 1)
	require.NoError(t, err)

	// The last proxy wraps to the front; the order-value set is unchanged
	assert.Equal(t, []string{"p3", "p1", "p2"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 10, 20}, proxyOrders(t, store, groupID))
}

func TestStore_ReorderProxies_RotateBackward(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)

	err := store.ReorderProxies(context.Background(), groupID, 0, 20, -1)
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "p3", "p1"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 10, 20}, proxyOrders(t, store, groupID))
}

func TestStore_ReorderProxies_InverseRotationsCancel(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)
	ctx := context.Background()

	require.NoError(t, store.ReorderProxies(ctx, groupID, 0, 20, 2))
	require.NoError(t, store.ReorderProxies(ctx, groupID, 0, 20, -2))

	assert.Equal(t, []string{"p1", "p2", "p3"}, proxyNames(t, store, groupID))
}

func TestStore_ReorderProxies_ModuloWindowLength(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)
	ctx := context.Background()

	// A full-cycle rotation is a no-op; 4 ≡ 1 (mod 3)
	require.NoError(t, store.ReorderProxies(ctx, groupID, 0, 20, 3))
	assert.Equal(t, []string{"p1", "p2", "p3"}, proxyNames(t, store, groupID))

	require.NoError(t, store.ReorderProxies(ctx, groupID, 0, 20, 4))
	assert.Equal(t, []string{"p3", "p1", "p2"}, proxyNames(t, store, groupID))
}

func TestStore_ReorderProxies_PartialWindow(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)

	// Only p2 and p3 fall inside [10, 20]; p1 must not move
	err := store.ReorderProxies(context.Background(), groupID, 10, 20, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p3", "p2"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 10, 20}, proxyOrders(t, store, groupID))
}

func TestStore_ReorderProxies_InvalidRange(t *testing.T) {
	store := setupTestStore(t)
	groupID := createTestGroup(t, store)

	err := store.ReorderProxies(context.Background(), groupID, 20, 10, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestStore_ReorderProxies_EmptyAndSingletonWindows(t *testing.T) {
	store := setupTestStore(t)
	groupID, _ := gappedGroup(t, store)
	ctx := context.Background()

	// No proxy has an order inside [100, 200]
	require.NoError(t, store.ReorderProxies(ctx, groupID, 100, 200, 5))
	// Only p1 lives inside [0, 5]
	require.NoError(t, store.ReorderProxies(ctx, groupID, 0, 5, 5))

	assert.Equal(t, []string{"p1", "p2", "p3"}, proxyNames(t, store, groupID))
}

// stubDecoder decodes a comma-separated list of names into proxy inputs;
// the payload "boom" fails to decode.
type stubDecoder struct{}

func (stubDecoder) DecodeProxies(payload []byte) ([]ProxyInput, error) {
	s := string(payload)
	if s == "boom" {
		return nil, fmt.Errorf("unparseable payload")
	}
	if s == "" {
		return nil, nil
	}
	var inputs []ProxyInput
	for _, name := range strings.Split(s, ",") {
		inputs = append(inputs, ProxyInput{Name: name, Proxy: []byte("descriptor-" + name), ProxyVersion: 1})
	}
	return inputs, nil
}

func TestStore_BatchUpdateProxiesByGroup_Replace(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	for _, name := range []string{"stale", "kept"} {
		_, err := store.CreateProxy(ctx, groupID, name, []byte("old"), 1)
		require.NoError(t, err)
	}

	keptID := func() int64 {
		proxies, err := store.GetProxiesByGroup(ctx, groupID)
		require.NoError(t, err)
		return proxies[1].ID
	}()

	err := store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("fresh,kept"))
	require.NoError(t, err)

	proxies, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	// Payload order wins and is renumbered densely from 0
	assert.Equal(t, []string{"fresh", "kept"}, proxyNames(t, store, groupID))
	assert.Equal(t, []int64{0, 1}, proxyOrders(t, store, groupID))

	// A matching name keeps its row but takes the payload descriptor
	assert.Equal(t, keptID, proxies[1].ID)
	assert.Equal(t, []byte("descriptor-kept"), proxies[1].Proxy)
}

func TestStore_BatchUpdateProxiesByGroup_Idempotent(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	require.NoError(t, store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("a,b,c")))
	before, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)

	require.NoError(t, store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("a,b,c")))
	after, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)

	require.Len(t, after, 3)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID, "identical payload keeps row identities")
		assert.Equal(t, before[i].Order, after[i].Order)
	}
}

func TestStore_BatchUpdateProxiesByGroup_EmptyPayloadClearsGroup(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	require.NoError(t, store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("a,b")))
	require.NoError(t, store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("")))

	proxies, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func TestStore_BatchUpdateProxiesByGroup_DecodeFailureLeavesState(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	require.NoError(t, store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("a,b")))

	err := store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("boom"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	assert.Equal(t, []string{"a", "b"}, proxyNames(t, store, groupID))
}

func TestStore_BatchUpdateProxiesByGroup_DuplicateNames(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))
	ctx := context.Background()
	groupID := createTestGroup(t, store)

	err := store.BatchUpdateProxiesByGroup(ctx, groupID, []byte("a,b,a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	proxies, err := store.GetProxiesByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func TestStore_BatchUpdateProxiesByGroup_GroupNotFound(t *testing.T) {
	store := setupTestStore(t, WithBatchDecoder(stubDecoder{}))

	err := store.BatchUpdateProxiesByGroup(context.Background(), 999, []byte("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_BatchUpdateProxiesByGroup_NoDecoderConfigured(t *testing.T) {
	store := setupTestStore(t)
	groupID := createTestGroup(t, store)

	err := store.BatchUpdateProxiesByGroup(context.Background(), groupID, []byte("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}
