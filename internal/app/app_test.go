package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"visual_experiment/internal/config"
	"visual_experiment/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Server.Mode = "test"
	cfg.Server.StaticDir = ""
	cfg.Database.Driver = util.DriverJSON
	cfg.Database.JSONPath = filepath.Join(t.TempDir(), "experiment_data.json")
	cfg.Session.Store = util.SessionMemory
	cfg.Archive.Type = util.ArchiveNone
	cfg.Tracing.Enabled = false
	cfg.Debug.PasswordHash = ""
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*App, *httptest.Server) {
	t.Helper()

	a, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return a, srv
}

// participant 模拟一个浏览器：保存 cookie，不自动跟随跳转
type participant struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newParticipant(t *testing.T, srv *httptest.Server) *participant {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &participant{
		t:    t,
		base: srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (p *participant) get(path string) (*http.Response, string) {
	p.t.Helper()
	resp, err := p.client.Get(p.base + path)
	require.NoError(p.t, err)
	return resp, readBody(p.t, resp)
}

func (p *participant) post(path string, form url.Values) (*http.Response, string) {
	p.t.Helper()
	resp, err := p.client.PostForm(p.base+path, form)
	require.NoError(p.t, err)
	return resp, readBody(p.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func answersFor(trial config.Trial, value string) url.Values {
	form := url.Values{}
	for _, q := range trial.Questions {
		form.Set(util.QuestionKey(q), value)
	}
	return form
}

// runExperimentArm 从落地页走完试验组全部四轮
func runExperimentArm(t *testing.T, p *participant, instructions []string) {
	t.Helper()
	trials := config.DefaultTrials().Trials

	resp, _ := p.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = p.post("/demographic", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = p.post("/start_experiment", url.Values{"gender": {"F"}, "age": {"22"}, "major": {"CS"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = p.post("/assign_group", url.Values{"group": {"experiment"}})
	assertRedirect(t, resp, "/experiment/0")

	for i, trial := range trials {
		idx := strconv.Itoa(i)

		resp, body := p.get("/experiment/" + idx)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, trial.InputImage)

		resp, body = p.post("/submit_instruction", url.Values{"trial": {idx}, "instruction": {instructions[i]}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "/evaluation/"+idx)

		resp, _ = p.get("/evaluation/" + idx)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		form := answersFor(trial, "5")
		form.Set("trial", idx)
		resp, _ = p.post("/submit_evaluation", form)
		if i == len(trials)-1 {
			assertRedirect(t, resp, "/thank_you")
		} else {
			assertRedirect(t, resp, "/experiment/"+strconv.Itoa(i+1))
		}
	}

	resp, _ = p.get("/thank_you")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExperimentFlow_PersistsParticipant(t *testing.T) {
	a, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)

	instructions := []string{"第一轮指令", "第二轮指令", "第三轮指令", "第四轮指令"}
	runExperimentArm(t, p, instructions)

	data := a.Store.Load(context.Background())
	require.Len(t, data.Participants, 1)

	var rec = data.Participants[0]
	assert.Len(t, rec.ID, util.ParticipantIDLength)
	assert.Equal(t, util.GroupExperiment, rec.Group)
	assert.Equal(t, "F", rec.Demographic.Gender)
	assert.Equal(t, "22", rec.Demographic.Age)
	assert.Equal(t, "CS", rec.Demographic.Major)
	assert.Equal(t, instructions, rec.Instructions)
	require.Len(t, rec.Evaluations, 4)

	// 只记录本轮配置的题目
	first := config.DefaultTrials().Trials[0]
	assert.Len(t, rec.Evaluations[0], len(first.Questions))
	require.NotNil(t, rec.Evaluations[0]["q6"])
	assert.Equal(t, "5", *rec.Evaluations[0]["q6"])

	require.Len(t, data.ExperimentGroupData, 1)
	assert.Equal(t, rec.ID, data.ExperimentGroupData[0].ParticipantID)
	assert.Equal(t, instructions, data.ExperimentGroupData[0].Instructions)
}

func TestControlFlow_UsesFallbackWithoutExperimentData(t *testing.T) {
	a, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)

	p.get("/")
	resp, _ := p.post("/assign_group", url.Values{"group": {"control"}})
	assertRedirect(t, resp, "/control_group")

	resp, _ = p.get("/control_group")
	assertRedirect(t, resp, "/control/0")

	resp, body := p.get("/control/0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, util.FallbackInstructions[0])
	assert.Contains(t, body, `action="/submit_control_evaluation"`)

	controlTrials := config.DefaultTrials().ControlTrials
	for i, trial := range controlTrials {
		form := answersFor(trial, "3")
		form.Set("trial", strconv.Itoa(i))
		resp, _ = p.post("/submit_control_evaluation", form)
		if i == len(controlTrials)-1 {
			assertRedirect(t, resp, "/thank_you")
		} else {
			assertRedirect(t, resp, "/control/"+strconv.Itoa(i+1))
		}
	}

	data := a.Store.Load(context.Background())
	require.Len(t, data.Participants, 1)
	assert.Equal(t, util.GroupControl, data.Participants[0].Group)
	assert.Empty(t, data.Participants[0].Instructions)
	require.Len(t, data.Participants[0].Evaluations, 4)
	// 第二轮 11 道题
	assert.Len(t, data.Participants[0].Evaluations[1], 11)
	assert.Empty(t, data.ExperimentGroupData)
}

func TestControlFlow_ShowsLatestExperimentInstructions(t *testing.T) {
	_, srv := newTestServer(t, newTestConfig(t))

	instructions := []string{"红色的猫", "蓝色的狗", "绿色的鸟", "黄色的鱼"}
	runExperimentArm(t, newParticipant(t, srv), instructions)

	p := newParticipant(t, srv)
	p.get("/")
	p.post("/assign_group", url.Values{"group": {"control"}})
	p.get("/control_group")

	for i, want := range instructions {
		resp, body := p.get("/control/" + strconv.Itoa(i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, want)
	}
}

func TestControlPhase_FallbackInstructionWithoutSeed(t *testing.T) {
	_, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)

	// 未经过 /control_group，previous_instructions 为空
	resp, body := p.get("/control/2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, util.FallbackControlInstruction)
}

func TestTrialBounds(t *testing.T) {
	a, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)
	p.get("/")

	for _, path := range []string{"/experiment/4", "/experiment/-1", "/evaluation/10", "/control/4"} {
		resp, _ := p.get(path)
		assertRedirect(t, resp, "/thank_you")
	}

	resp, _ := p.get("/experiment/abc")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = p.post("/submit_instruction", url.Values{"trial": {"7"}, "instruction": {"x"}})
	assertRedirect(t, resp, "/thank_you")

	resp, _ = p.post("/submit_evaluation", url.Values{"trial": {"9"}})
	assertRedirect(t, resp, "/thank_you")

	resp, _ = p.post("/submit_instruction", url.Values{"trial": {"-1"}, "instruction": {"x"}})
	assertRedirect(t, resp, "/thank_you")

	resp, _ = p.post("/submit_control_evaluation", url.Values{"trial": {"-1"}, "q6": {"4"}})
	assertRedirect(t, resp, "/thank_you")

	data := a.Store.Load(context.Background())
	assert.Empty(t, data.Participants)
	assert.Empty(t, data.ExperimentGroupData)
}

func TestLandingIgnoresClientChosenSessionID(t *testing.T) {
	_, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	p.client.Jar.SetCookies(u, []*http.Cookie{{Name: "experiment_session", Value: "attacker-chosen"}})

	resp, _ := p.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var issued string
	for _, ck := range resp.Cookies() {
		if ck.Name == "experiment_session" {
			issued = ck.Value
		}
	}
	assert.NotEmpty(t, issued)
	assert.NotEqual(t, "attacker-chosen", issued)
}

func TestLandingResetsSession(t *testing.T) {
	a, srv := newTestServer(t, newTestConfig(t))
	p := newParticipant(t, srv)

	p.get("/")
	p.post("/assign_group", url.Values{"group": {"experiment"}})
	p.post("/submit_instruction", url.Values{"trial": {"0"}, "instruction": {"旧指令"}})

	// 重新进入落地页后旧指令不再保留
	runExperimentArm(t, p, []string{"a", "b", "c", "d"})

	data := a.Store.Load(context.Background())
	require.Len(t, data.Participants, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, data.Participants[0].Instructions)
}

func TestDebugRequiresBasicAuth(t *testing.T) {
	cfg := newTestConfig(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.Debug.Username = "admin"
	cfg.Debug.PasswordHash = string(hash)

	_, srv := newTestServer(t, cfg)

	resp, err := http.Get(srv.URL + "/debug")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/debug", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "参与者数量: 0")
}

func TestHealthCheck(t *testing.T) {
	_, srv := newTestServer(t, newTestConfig(t))

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var r util.Response
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	assert.Equal(t, http.StatusOK, r.Code)
	assert.True(t, strings.Contains(body, `"store":"up"`))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := New(cfg)
	assert.ErrorIs(t, err, util.ErrUnsupportedDriver)
}

func TestNew_InitOnlyCreatesStore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.InitOnly = true

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Router)
	assert.FileExists(t, cfg.Database.JSONPath)
}
