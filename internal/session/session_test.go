package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"visual_experiment/internal/model"
	"visual_experiment/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testOpts = Options{CookieName: "experiment_session", MaxAge: time.Hour}

// roundTrip 先用 store 保存 s，再带着返回的 cookie 重新加载
func roundTrip(t *testing.T, store Store, s *Session) (*Session, error) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, store.Save(c, s))

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req
	return store.Load(c2)
}

func sample() *Session {
	v := "4"
	return &Session{
		ParticipantID: "abcd1234",
		Group:         util.GroupExperiment,
		Demographic:   &model.Demographic{Gender: "F", Age: "22", Major: "CS"},
		Instructions:  []string{"画一只猫"},
		Evaluations:   []model.Evaluation{{"q6": &v, "q7": nil}},
		CurrentTrial:  1,
	}
}

func assertSameState(t *testing.T, want, got *Session) {
	t.Helper()
	assert.Equal(t, want.ParticipantID, got.ParticipantID)
	assert.Equal(t, want.Group, got.Group)
	assert.Equal(t, want.Demographic, got.Demographic)
	assert.Equal(t, want.Instructions, got.Instructions)
	assert.Equal(t, want.CurrentTrial, got.CurrentTrial)
	require.Len(t, got.Evaluations, 1)
	assert.Equal(t, "4", *got.Evaluations[0]["q6"])
	assert.Nil(t, got.Evaluations[0]["q7"])
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(testOpts)
	want := sample()

	got, err := roundTrip(t, store, want)
	require.NoError(t, err)
	assertSameState(t, want, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_NoCookieGivesFreshSession(t *testing.T) {
	store := NewMemoryStore(testOpts)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := store.Load(c)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.ParticipantID)
}

func TestMemoryStore_Expired(t *testing.T) {
	store := NewMemoryStore(testOpts)
	now := time.Now()
	store.now = func() time.Time { return now }

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, store.Save(c, sample()))

	store.now = func() time.Time { return now.Add(2 * time.Hour) }

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req

	s, err := store.Load(c2)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
	assert.Empty(t, s.ParticipantID)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_UnknownCookieGetsNewID(t *testing.T) {
	store := NewMemoryStore(testOpts)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testOpts.CookieName, Value: "attacker-chosen"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	s, err := store.Load(c)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
	assert.NotEmpty(t, s.ID)
	assert.NotEqual(t, "attacker-chosen", s.ID)

	s.Reset()
	require.NoError(t, store.Save(c, s))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testOpts.CookieName, cookies[0].Name)
	assert.NotEqual(t, "attacker-chosen", cookies[0].Value)
	assert.Equal(t, s.ID, cookies[0].Value)
}

func TestMemoryStore_ResetRotatesID(t *testing.T) {
	store := NewMemoryStore(testOpts)
	first := sample()

	loaded, err := roundTrip(t, store, first)
	require.NoError(t, err)
	require.Equal(t, first.ID, loaded.ID)

	loaded.Reset()
	got, err := roundTrip(t, store, loaded)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, got.ID)
	assert.Empty(t, got.Group)
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore("0123456789abcdef0123456789abcdef", testOpts)
	want := sample()

	got, err := roundTrip(t, store, want)
	require.NoError(t, err)
	assertSameState(t, want, got)
}

func TestCookieStore_RejectsForeignSignature(t *testing.T) {
	signer := NewCookieStore("secret-one-secret-one-secret-one", testOpts)
	verifier := NewCookieStore("secret-two-secret-two-secret-two", testOpts)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, signer.Save(c, sample()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req

	s, err := verifier.Load(c2)
	assert.ErrorIs(t, err, util.ErrInvalidSession)
	assert.Empty(t, s.ParticipantID)
}

func TestSession_Reset(t *testing.T) {
	s := sample()
	s.ID = "sid"
	old := s.ParticipantID

	s.Reset()

	assert.NotEmpty(t, s.ID)
	assert.NotEqual(t, "sid", s.ID)
	assert.Len(t, s.ParticipantID, util.ParticipantIDLength)
	assert.NotEqual(t, old, s.ParticipantID)
	assert.Empty(t, s.Group)
	assert.Nil(t, s.Instructions)
	assert.Nil(t, s.Evaluations)
	assert.Nil(t, s.Demographic)
	assert.Zero(t, s.CurrentTrial)
}
