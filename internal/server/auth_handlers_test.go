package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "dj_quietstorm",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
	profile := body["profile"].(map[string]interface{})
	assert.Equal(t, "dj_quietstorm", profile["username"])
	// Display name falls back to the username.
	assert.Equal(t, "dj_quietstorm", profile["display_name"])
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "taken",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = f.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "taken",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRegister_Validation(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = f.doJSON(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": strings.Repeat("x", 101),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGuestSession(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/auth/guest", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["token"])
	profile := body["profile"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(profile["username"].(string), "guest-"))
	assert.Equal(t, "Anonymous Listener", profile["display_name"])
}

func TestAuthRequired_RejectsGarbageToken(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", "not-a-jwt", map[string]uint{
		"song_id": 1,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuthRequired_RejectsMissingHeader(t *testing.T) {
	f := newServerFixture(t)

	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", "", map[string]uint{
		"song_id": 1,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}
