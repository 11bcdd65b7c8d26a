package plextv_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anibridge-plex/internal/services"
	"anibridge-plex/internal/services/plextv"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *plextv.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := plextv.New(plextv.Config{
		BaseURL:          srv.URL,
		DiscoverURL:      srv.URL,
		Token:            "admin-token",
		ClientIdentifier: "client-1",
	})
	require.NoError(t, err)
	return client
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := plextv.New(plextv.Config{})
	require.Error(t, err)
}

func TestAccount_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/user", r.URL.Path)
		assert.Equal(t, "admin-token", r.Header.Get("X-Plex-Token"))
		assert.Equal(t, "client-1", r.Header.Get("X-Plex-Client-Identifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1,"uuid":"u-1","username":"Admin","email":"admin@example.com","title":"Admin"}`))
	})

	account, err := client.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), account.ID)
	assert.Equal(t, "admin@example.com", account.Email)
}

func TestAccount_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Account(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestUsers_DecodesXML(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<MediaContainer size="2">
			<User id="42" title="Bob" username="bob" email="bob@example.com" home="0"><Server machineIdentifier="abc"/></User>
			<User id="43" title="Kid" username="" email="" home="1" restricted="1"/>
		</MediaContainer>`))
	})

	users, err := client.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Login())
	assert.Equal(t, "Kid", users[1].Login())
	assert.True(t, users[1].Home)
	assert.True(t, users[1].Restricted)
}

func TestSharedServerToken_MatchesUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/servers/abc/shared_servers", r.URL.Path)
		_, _ = w.Write([]byte(`<MediaContainer>
			<SharedServer id="1" userID="41" username="carol" accessToken="carol-token"/>
			<SharedServer id="2" userID="42" username="bob" accessToken="bob-token"/>
		</MediaContainer>`))
	})

	token, err := client.SharedServerToken(context.Background(), "abc", 42)
	require.NoError(t, err)
	assert.Equal(t, "bob-token", token)

	_, err = client.SharedServerToken(context.Background(), "abc", 99)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestWatchlist_Paginates(t *testing.T) {
	const total = 150
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/library/sections/watchlist/all", r.URL.Path)
		start, err := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Start"))
		assert.NoError(t, err)
		size, err := strconv.Atoi(r.URL.Query().Get("X-Plex-Container-Size"))
		assert.NoError(t, err)

		end := min(start+size, total)
		body := fmt.Sprintf(`{"MediaContainer":{"totalSize":%d,"Metadata":[`, total)
		for i := start; i < end; i++ {
			if i > start {
				body += ","
			}
			body += fmt.Sprintf(`{"guid":"plex://movie/%d"}`, i)
		}
		body += "]}}"
		_, _ = w.Write([]byte(body))
	})

	guids, err := client.Watchlist(context.Background())
	require.NoError(t, err)
	assert.Len(t, guids, total)
	assert.Equal(t, "plex://movie/0", guids[0])
	assert.Equal(t, "plex://movie/149", guids[total-1])
	assert.Equal(t, 2, calls)
}

func TestWatchlist_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.Watchlist(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}
