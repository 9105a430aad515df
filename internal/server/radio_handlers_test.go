package server

import (
	"net/http"
	"testing"
	"time"

	"youniverse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowPlaying_Snapshot(t *testing.T) {
	f := newServerFixture(t)

	song := f.addSong(t, models.SongStatusNowPlaying)
	startedAt := time.Now().Add(-42 * time.Second)
	roundStart := time.Now().Add(-5 * time.Second)
	f.setBroadcast(t, map[string]interface{}{
		"current_song_id":  song.ID,
		"song_started_at":  startedAt,
		"playback_state":   models.StateBoxVoting,
		"round_started_at": roundStart,
		"leader_id":        "node-a",
	})

	resp := f.doJSON(t, http.MethodGet, "/api/radio/now", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	assert.Equal(t, models.StateBoxVoting, body["playback_state"])
	assert.Equal(t, "node-a", body["leader_id"])
	assert.InDelta(t, 42, body["position_sec"], 2)
	assert.InDelta(t, 25, body["voting_remaining_sec"], 2)

	current := body["current_song"].(map[string]interface{})
	assert.Equal(t, float64(song.ID), current["id"])
}

func TestNowPlaying_OmitsStaleSiteCommand(t *testing.T) {
	f := newServerFixture(t)

	f.setBroadcast(t, map[string]interface{}{
		"site_command_type": "dj_line",
		"site_command_body": "old news",
		"site_command_at":   time.Now().Add(-time.Minute),
	})

	resp := f.doJSON(t, http.MethodGet, "/api/radio/now", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	_, present := body["site_command"]
	assert.False(t, present)
}

func TestCurrentBox(t *testing.T) {
	f := newServerFixture(t)

	a := f.addSong(t, models.SongStatusInBox)
	f.addSong(t, models.SongStatusInBox)
	f.addSong(t, models.SongStatusPool)
	f.setBroadcast(t, map[string]interface{}{
		"playback_state":   models.StateBoxVoting,
		"round_started_at": time.Now(),
	})

	_, token := f.registerProfile(t, "voter")
	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", token,
		map[string]uint{"song_id": a.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = f.doJSON(t, http.MethodGet, "/api/radio/box", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	assert.Equal(t, true, body["open"])
	box := body["box"].([]interface{})
	require.Len(t, box, 2)

	first := box[0].(map[string]interface{})
	assert.Equal(t, float64(10), first["votes"])
}

func TestCastVote_FullFlow(t *testing.T) {
	f := newServerFixture(t)

	a := f.addSong(t, models.SongStatusInBox)
	f.addSong(t, models.SongStatusInBox)
	outsider := f.addSong(t, models.SongStatusPool)
	f.setBroadcast(t, map[string]interface{}{"playback_state": models.StateBoxVoting})

	_, token := f.registerProfile(t, "voter")

	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", token,
		map[string]uint{"song_id": a.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(a.ID), body["voted"])

	// Same round, same profile: rejected.
	resp = f.doJSON(t, http.MethodPost, "/api/radio/vote", token,
		map[string]uint{"song_id": a.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	// A song outside the box cannot receive votes.
	_, token2 := f.registerProfile(t, "voter2")
	resp = f.doJSON(t, http.MethodPost, "/api/radio/vote", token2,
		map[string]uint{"song_id": outsider.ID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCastVote_NoOpenRound(t *testing.T) {
	f := newServerFixture(t)

	a := f.addSong(t, models.SongStatusInBox)
	f.setBroadcast(t, map[string]interface{}{"playback_state": models.StateNowPlaying})

	_, token := f.registerProfile(t, "voter")
	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", token,
		map[string]uint{"song_id": a.ID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCastVote_MissingSongID(t *testing.T) {
	f := newServerFixture(t)

	_, token := f.registerProfile(t, "voter")
	resp := f.doJSON(t, http.MethodPost, "/api/radio/vote", token, map[string]uint{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRateDebut_FullFlow(t *testing.T) {
	f := newServerFixture(t)

	debut := f.addSong(t, models.SongStatusDebut)
	f.setBroadcast(t, map[string]interface{}{
		"current_song_id": debut.ID,
		"song_started_at": time.Now(),
		"playback_state":  models.StateNowPlaying,
	})

	_, token := f.registerProfile(t, "critic")

	resp := f.doJSON(t, http.MethodPost, "/api/radio/rate", token,
		map[string]interface{}{"song_id": debut.ID, "score": 8})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(8), body["score"])

	// One rating per profile per debut.
	resp = f.doJSON(t, http.MethodPost, "/api/radio/rate", token,
		map[string]interface{}{"song_id": debut.ID, "score": 3})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRateDebut_Validation(t *testing.T) {
	f := newServerFixture(t)

	debut := f.addSong(t, models.SongStatusDebut)
	regular := f.addSong(t, models.SongStatusNowPlaying)
	f.setBroadcast(t, map[string]interface{}{
		"current_song_id": debut.ID,
		"song_started_at": time.Now(),
		"playback_state":  models.StateNowPlaying,
	})

	_, token := f.registerProfile(t, "critic")

	// Score outside 0-10.
	resp := f.doJSON(t, http.MethodPost, "/api/radio/rate", token,
		map[string]interface{}{"song_id": debut.ID, "score": 11})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	// Rating a song that is not on air.
	resp = f.doJSON(t, http.MethodPost, "/api/radio/rate", token,
		map[string]interface{}{"song_id": regular.ID, "score": 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	// The song on air is not a debut.
	f.setBroadcast(t, map[string]interface{}{"current_song_id": regular.ID})
	resp = f.doJSON(t, http.MethodPost, "/api/radio/rate", token,
		map[string]interface{}{"song_id": regular.ID, "score": 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}
