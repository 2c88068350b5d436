package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pritam/bingocraft/internal/adapter"
	"github.com/pritam/bingocraft/internal/catalog"
	"github.com/pritam/bingocraft/internal/config"
	"github.com/pritam/bingocraft/internal/engine"
	"github.com/pritam/bingocraft/internal/notify"
	"github.com/pritam/bingocraft/internal/store"
)

const testAdminPassword = "hunter2"

// testCatalogYAML builds nine objectives with distinct categories so a
// 3x3 board uses every one and a single event completes a single cell.
func testCatalogYAML() []byte {
	var buf bytes.Buffer
	buf.WriteString("objectives:\n")
	buf.WriteString("  - id: obj-0\n    category: BLOCK_BREAK\n    label: Break any block\n")
	for i := 1; i < 9; i++ {
		fmt.Fprintf(&buf, "  - id: obj-%d\n    category: \"ITEM_CRAFT:item-%d\"\n    label: Craft item %d\n", i, i, i)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, adminHash string) (*Server, *httptest.Server) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "bingo.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cat, err := catalog.Parse(testCatalogYAML())
	require.NoError(t, err)

	logger := zap.NewNop()
	eng := engine.New(st, cat, notify.NewLogSink(logger), time.Second, logger)
	adp := adapter.New(eng, logger)
	hub := notify.NewHub(logger)
	t.Cleanup(hub.Close)

	srv := New(
		config.ServerConfig{Address: "127.0.0.1:0", ShutdownTimeout: time.Second},
		config.AdminConfig{PasswordHash: adminHash},
		config.GameConfig{DefaultRows: 3, DefaultCols: 3},
		eng, adp, st, hub, logger,
	)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func adminHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createRequestBody() createInstanceRequest {
	return createInstanceRequest{
		Seed:    42,
		Rows:    3,
		Cols:    3,
		WinRule: "FULL_BOARD",
		Teams: []teamSpecRequest{
			{Name: "Red", Members: []string{"alice", "bob"}},
			{Name: "Blue", Members: []string{"carol"}},
		},
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestInstanceLifecycleOverHTTP(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", createRequestBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created engine.InstanceSnapshot
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "PENDING", created.StateName)
	assert.Len(t, created.Board.Cells, 9)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+created.ID+"/activate", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var activated engine.InstanceSnapshot
	decodeBody(t, resp, &activated)
	assert.Equal(t, "ACTIVE", activated.StateName)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/instances/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched engine.InstanceSnapshot
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+created.ID+"/abort", "", abortRequest{Reason: "test over"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var aborted engine.InstanceSnapshot
	decodeBody(t, resp, &aborted)
	assert.Equal(t, "ABORTED", aborted.StateName)
}

func TestListInstances(t *testing.T) {
	_, ts := newTestServer(t, "")

	for i := 0; i < 2; i++ {
		body := createRequestBody()
		body.Seed = int64(100 + i)
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/instances")
	require.NoError(t, err)

	var listing struct {
		Instances []engine.InstanceSnapshot `json:"instances"`
	}
	decodeBody(t, resp, &listing)
	assert.Len(t, listing.Instances, 2)
}

func TestCreateInstanceValidation(t *testing.T) {
	_, ts := newTestServer(t, "")

	body := createRequestBody()
	body.Teams[1].Members = []string{"alice"} // already on Red
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivateUnknownInstance(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances/nope/activate", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateTwiceConflicts(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", createRequestBody())
	var created engine.InstanceSnapshot
	decodeBody(t, resp, &created)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+created.ID+"/activate", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+created.ID+"/activate", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHostEventEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", createRequestBody())
	var created engine.InstanceSnapshot
	decodeBody(t, resp, &created)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances/"+created.ID+"/activate", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/events", "", hostEventRequest{
		Type:     "BLOCK_BREAK",
		PlayerID: "alice",
		Detail:   "stone",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/instances/"+created.ID, "", nil)
	var fetched engine.InstanceSnapshot
	decodeBody(t, resp, &fetched)

	var redID string
	for _, team := range fetched.Teams {
		if team.Name == "Red" {
			redID = team.ID
		}
	}
	require.NotEmpty(t, redID)
	assert.Equal(t, 1, fetched.CompletedCount(redID))
}

func TestAdminAuth(t *testing.T) {
	_, ts := newTestServer(t, adminHash(t))

	// No credentials.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/instances", "", createRequestBody())
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong password.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances", "wrong", createRequestBody())
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Correct password.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/instances", testAdminPassword, createRequestBody())
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Read endpoints stay public.
	getResp, err := http.Get(ts.URL + "/api/instances")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestDiagnosticsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/diagnostics")
	require.NoError(t, err)

	var diag store.Diagnostics
	decodeBody(t, resp, &diag)
	assert.Equal(t, "wal", diag.JournalMode)
}
