// Package tests provides reusable contract suites for port implementations.
package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDocumentStoreContract verifies that a DocumentStore honours the
// compare-and-swap contract every engine relies on.
func RunDocumentStoreContract(t *testing.T, store ports.DocumentStore) {
	ctx := context.Background()
	prefix := "contract/" + time.Now().Format("20060102150405.000000000")

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"/missing")
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

		_, err = store.Version(ctx, prefix+"/missing")
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("Create Then Read", func(t *testing.T) {
		key := prefix + "/create"
		body := []byte(`{"name":"first"}`)

		version, err := store.Put(ctx, ports.PutRequest{Key: key, Body: body, Credential: "token"})
		require.NoError(t, err)
		require.NotEmpty(t, version)

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, string(body), string(obj.Body))
		assert.Equal(t, version, obj.Version)

		current, err := store.Version(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, version, current)
	})

	t.Run("Create Over Existing Conflicts", func(t *testing.T) {
		key := prefix + "/exists"
		_, err := store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(`{"v":1}`), Credential: "token"})
		require.NoError(t, err)

		_, err = store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(`{"v":2}`), Credential: "token"})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(obj.Body))
	})

	t.Run("Compare And Swap", func(t *testing.T) {
		key := prefix + "/cas"
		v1, err := store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(`{"v":1}`), Credential: "token"})
		require.NoError(t, err)

		v2, err := store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(`{"v":2}`), IfMatch: v1, Credential: "token"})
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)

		// A writer still holding v1 must be rejected, not silently win.
		_, err = store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(`{"v":3}`), IfMatch: v1, Credential: "token"})
		require.Error(t, err)
		var conflict *domain.ConflictError
		assert.True(t, errors.As(err, &conflict), "expected *domain.ConflictError, got %T", err)

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(obj.Body))
		assert.Equal(t, v2, obj.Version)
	})

	t.Run("Update Non-Existent With Precondition", func(t *testing.T) {
		_, err := store.Put(ctx, ports.PutRequest{Key: prefix + "/ghost", Body: []byte(`{}`), IfMatch: "stale", Credential: "token"})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	if lister, ok := store.(ports.Lister); ok {
		t.Run("List", func(t *testing.T) {
			keys, err := lister.List(ctx, prefix)
			require.NoError(t, err)
			assert.Contains(t, keys, prefix+"/create")
			assert.Contains(t, keys, prefix+"/cas")
		})
	}
}
