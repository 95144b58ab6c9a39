package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/herverfred/mission-center/internal/application/activity"
	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/domain"
	"github.com/herverfred/mission-center/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	srv    *httptest.Server
	store  *memory.Store
	pub    *memory.Publisher
	keeper *memory.Keeper
	clock  fixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	keeper := memory.NewKeeper()
	pub := memory.NewPublisher()
	clock := fixedClock{t: time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)}

	store.AddUser(domain.User{ID: 1, Username: "alice", Password: "password123"})
	store.AddGame(domain.Game{ID: 7, Name: "Stellar Drift"})
	store.AddGame(domain.Game{ID: 8, Name: "Dungeon Loop"})

	missionSvc := mission.NewService(store, keeper, clock, 5*time.Minute)
	dist := mission.NewDistributor(store, missionSvc, clock)
	actSvc := activity.NewService(store, pub, clock)

	handler := NewRouter(RouterDeps{
		Handler: NewHandler(actSvc, missionSvc, dist),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: store, pub: pub, keeper: keeper, clock: clock}
}

func (fx *fixture) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(fx.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func (fx *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(fx.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data
}

func decodeErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var env struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.NotEmpty(t, env.Error.RequestID)
	return env.Error.Code
}

func TestLoginEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postJSON(t, "/api/login", map[string]string{
		"username": "alice", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decodeData(t, resp)
	assert.Equal(t, float64(1), data["user_id"])
	assert.Equal(t, "alice", data["username"])
}

func TestLoginEndpoint_BadCredentials(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postJSON(t, "/api/login", map[string]string{
		"username": "alice", "password": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "auth.invalid_credentials", decodeErrorCode(t, resp))
}

func TestLoginEndpoint_InvalidLoginDate(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postJSON(t, "/api/login", map[string]string{
		"username": "alice", "password": "password123", "login_date": "24/08/2026",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "request.invalid", decodeErrorCode(t, resp))
}

func TestLaunchEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postJSON(t, "/api/games/launch", map[string]int64{
		"user_id": 1, "game_id": 7,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = fx.postJSON(t, "/api/games/launch", map[string]int64{
		"user_id": 1, "game_id": 99,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "game.not_found", decodeErrorCode(t, resp))
}

func TestPlayEndpoint_EchoesGeneratedScore(t *testing.T) {
	fx := newFixture(t)

	resp := fx.postJSON(t, "/api/games/play", map[string]int64{
		"user_id": 1, "game_id": 7,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	data := decodeData(t, resp)
	score, ok := data["score"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, float64(0))
	assert.LessOrEqual(t, score, float64(activity.MaxScore))
}

func TestMissionProgressEndpoint(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cycleStart := domain.Normalize(fx.clock.t)
	for _, mt := range domain.AllMissionTypes {
		_, err := fx.store.InsertMission(ctx, 1, mt, cycleStart)
		require.NoError(t, err)
	}

	resp := fx.get(t, "/api/users/1/missions")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decodeData(t, resp)
	missions, ok := data["missions"].([]any)
	require.True(t, ok)
	assert.Len(t, missions, 3)

	first := missions[0].(map[string]any)
	assert.Contains(t, first, "mission_type")
	assert.Contains(t, first, "is_completed")
}

func TestMissionProgressEndpoint_UnknownUser(t *testing.T) {
	fx := newFixture(t)

	resp := fx.get(t, "/api/users/99/missions")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "user.not_found", decodeErrorCode(t, resp))
}

func TestMissionProgressEndpoint_BadUserID(t *testing.T) {
	fx := newFixture(t)

	resp := fx.get(t, "/api/users/abc/missions")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "request.invalid", decodeErrorCode(t, resp))
}

func TestRewardsEndpoint(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.store.DistributeReward(ctx, 1,
		domain.RewardTypeMissionCompletion, "2026-08", domain.RewardPoints, fx.clock.t)
	require.NoError(t, err)

	resp := fx.get(t, "/api/users/1/rewards")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decodeData(t, resp)
	rewards, ok := data["rewards"].([]any)
	require.True(t, ok)
	require.Len(t, rewards, 1)

	first := rewards[0].(map[string]any)
	assert.Equal(t, "2026-08", first["reward_period"])
	assert.Equal(t, float64(777), first["points"])
}

func TestGamesEndpoint(t *testing.T) {
	fx := newFixture(t)

	resp := fx.get(t, "/api/games")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decodeData(t, resp)
	games, ok := data["games"].([]any)
	require.True(t, ok)
	assert.Len(t, games, 2)
}

func TestHealthz(t *testing.T) {
	fx := newFixture(t)

	resp := fx.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	fx := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, fx.srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "trace-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get("X-Request-Id"))
}
