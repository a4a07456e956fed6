package directory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/directory"
)

func TestHTTPResolver(t *testing.T) {
	t.Parallel()

	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		switch r.URL.Path {
		case "/positions/pos-manager/occupants":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user_ids": ["user-1", "user-2"]}`))
		case "/positions/pos-vacant/occupants":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user_ids": []}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	resolver := directory.NewHTTPResolver(server.URL)
	ctx := context.Background()

	// The first occupant is the representative approver.
	userID, err := resolver.Resolve(ctx, "pos-manager", "token-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "Bearer token-1", gotAuth)

	_, err = resolver.Resolve(ctx, "pos-vacant", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrPositionVacant)

	_, err = resolver.Resolve(ctx, "pos-missing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrPositionNotFound)
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	resolver := directory.NewStaticResolver(map[string]string{"pos-1": "user-1"})

	userID, err := resolver.Resolve(context.Background(), "pos-1", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = resolver.Resolve(context.Background(), "pos-2", "")
	assert.ErrorIs(t, err, directory.ErrPositionNotFound)
}
