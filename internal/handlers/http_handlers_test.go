package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chest/internal/catalog"
	"chest/internal/models"
	"chest/internal/sequencer"
	"chest/internal/services"
	"chest/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

type testServer struct {
	router *gin.Engine
	clock  *sequencer.ManualClock
	store  *storage.MemoryStore
	cookie *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tmpl := template.Must(template.New("layout.html").Parse(`<main>{{.PageContent}}</main>`))
	template.Must(tmpl.New("chest.html").Parse(
		`<div data-phase="{{.State.Phase}}">{{with .State.Prize}}{{.Label}}{{end}}{{if .Legendary}} crown{{end}}</div>`))

	clock := sequencer.NewManualClock(time.Date(2025, 12, 24, 22, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStore()
	sessions := services.NewSessionService(services.SessionConfig{
		Catalog: catalog.Default(),
		Store:   store,
		Timings: sequencer.DefaultTimings(),
		Clock:   clock,
		Random:  fixedSource(0.5), // r = 50 of 100 -> BONO_150
	})
	h := NewHTTPHandler(sessions, tmpl)

	r := gin.New()
	h.RegisterPublicRoutes(r)
	player := r.Group("/")
	player.Use(h.PlayerMiddleware())
	h.RegisterPlayerRoutes(player)

	return &testServer{router: r, clock: clock, store: store}
}

func (s *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == playerCookie {
			s.cookie = c
		}
	}
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var st stateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func TestPlayerMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/state")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, s.cookie, "first visit mints a player cookie")
	first := s.cookie.Value

	s.do(t, http.MethodGet, "/state")
	assert.Equal(t, first, s.cookie.Value, "cookie is reused")

	s.cookie = &http.Cookie{Name: playerCookie, Value: "../../etc"}
	s.do(t, http.MethodGet, "/state")
	assert.NotEqual(t, "../../etc", s.cookie.Value, "malformed ids are replaced")
}

func TestOpenChestFlow(t *testing.T) {
	s := newTestServer(t)

	st := decodeState(t, s.do(t, http.MethodGet, "/state"))
	assert.Equal(t, models.PhaseIdle, st.Phase)
	assert.False(t, st.HasExistingDraw)
	assert.Nil(t, st.Prize)

	w := s.do(t, http.MethodGet, "/outcome")
	assert.Equal(t, http.StatusConflict, w.Code)

	var opened struct {
		Accepted bool          `json:"accepted"`
		State    stateResponse `json:"state"`
	}
	w = s.do(t, http.MethodPost, "/open")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.True(t, opened.Accepted)
	assert.Equal(t, models.PhaseShaking, opened.State.Phase)
	assert.True(t, opened.State.Busy)
	require.NotNil(t, opened.State.Prize)
	assert.Equal(t, "BONO_150", opened.State.Prize.ID)

	w = s.do(t, http.MethodPost, "/open")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.False(t, opened.Accepted, "double click is ignored")

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodGet, "/outcome").Code)

	s.clock.Advance(2 * time.Second)

	w = s.do(t, http.MethodGet, "/outcome")
	require.Equal(t, http.StatusOK, w.Code)
	var prize models.PrizeDefinition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prize))
	assert.Equal(t, "BONO_150", prize.ID)
	assert.Equal(t, "NOEL-150", prize.Code)

	w = s.do(t, http.MethodGet, "/")
	assert.Contains(t, w.Body.String(), `data-phase="settled"`)
	assert.Contains(t, w.Body.String(), "Bono del 150%")
}

func TestResetQueryParameter(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/open")
	s.clock.Advance(2 * time.Second)
	require.True(t, decodeState(t, s.do(t, http.MethodGet, "/state")).HasExistingDraw)

	w := s.do(t, http.MethodGet, "/?reset=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-phase="idle"`)

	st := decodeState(t, s.do(t, http.MethodGet, "/state"))
	assert.Equal(t, models.PhaseIdle, st.Phase)
	assert.False(t, st.HasExistingDraw)
	assert.False(t, st.Busy)
}

func TestStreamEventsEndsWhenSettled(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/open")
	s.clock.Advance(2 * time.Second)

	w := s.do(t, http.MethodGet, "/events")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:phase")
	assert.Contains(t, w.Body.String(), `"phase":"settled"`)
	assert.Contains(t, w.Body.String(), `"id":"BONO_150"`)
}

func TestListPrizes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/prizes")
	require.Equal(t, http.StatusOK, w.Code)

	var prizes []prizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prizes))
	require.Len(t, prizes, 5)
	assert.Equal(t, "BONO_100", prizes[0].ID)
	assert.InDelta(t, 0.40, prizes[0].Probability, 1e-9)
	assert.Nil(t, s.cookie, "public routes do not mint players")
}
