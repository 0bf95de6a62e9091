package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sfc/internal/actuator"
	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sfc/internal/monitor"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/sfc"
	"github.com/nerrad567/gray-logic-sfc/internal/variable"
	_ "github.com/nerrad567/gray-logic-sfc/migrations"
)

const tankLevel = "ns=3;s=Plant.Tank.Level"

type testEnv struct {
	srv     *Server
	handler http.Handler
	plc     *variable.MemoryServer
	manager *sfc.Manager
}

// newTestEnv wires the API over a migrated temp-dir database, an in-memory
// automation server and a real run manager.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")

	plc := variable.NewMemoryServer()
	plc.Set(tankLevel, variable.FloatValue(0))

	designs := design.NewSQLiteRepository(db.DB)
	cat := catalog.NewSQLiteRepository(db.DB)
	store := recording.NewSQLiteStore(db.DB)
	names := catalog.NewResolver(cat, time.Minute)
	events := broadcast.New(log)

	mon := monitor.New(plc, store, store, names, monitor.Options{Interval: 5 * time.Millisecond}, log)
	mgr := sfc.NewManager(sfc.Deps{
		Designs:  designs,
		Servers:  cat,
		Tracking: cat,
		Monitor:  mon,
		Ramper:   actuator.New(plc, log),
		Events:   events,
	}, sfc.Options{
		Executor:  sfc.ExecutorOptions{Heartbeat: 10 * time.Millisecond, StepsPerSecond: 20},
		Scheduler: sfc.SchedulerOptions{IdleWait: 5 * time.Millisecond, Settle: time.Millisecond},
	}, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, mgr.Close(ctx))
	})

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Designs:  designs,
		Catalog:  cat,
		Runs:     store,
		Manager:  mgr,
		Names:    names,
		Database: db,
		Version:  "test",
	})
	require.NoError(t, err)
	t.Cleanup(srv.hub.closeAll)

	return &testEnv{srv: srv, handler: srv.Handler(), plc: plc, manager: mgr}
}

// do performs a request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

// configure stores a server, a one-variable catalog and tracks it.
func (e *testEnv) configure(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/server",
		catalog.ServerConfig{URL: "mem://plc", Prefix: "ns=3;s=Plant"}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/variables",
		replaceVariablesRequest{Variables: []catalog.Variable{
			{NodeID: tankLevel, BrowseName: "Level", DataType: "Float"},
		}}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/tracking",
		catalog.Selection{Pattern: "Tank", Nodes: []string{tankLevel}}, nil))
}

// createDesign stores a start -> fill -> hold chart.
func (e *testEnv) createDesign(t *testing.T) string {
	t.Helper()
	var d design.Design
	code := e.do(t, http.MethodPost, "/api/v1/designs", map[string]any{
		"name": "Fill tank",
		"nodes": json.RawMessage(`[
			{"id":"s","type":"start","data":{}},
			{"id":"fill","type":"setvalue","data":{"setValueConfig":{"opcNode":"Tank.Level","startValue":0,"endValue":10,"time":0.2}}},
			{"id":"hold","type":"wait","data":{"waitConfig":{"time":0.05}}}
		]`),
		"edges": json.RawMessage(`[{"source":"s","target":"fill"},{"source":"fill","target":"hold"}]`),
	}, &d)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, d.ID)
	return d.ID
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, map[string]any{"database": "ok"}, body["checks"])
}

func TestRequestIDHeader(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 2*requestIDBytes)
}

func TestServerConfig(t *testing.T) {
	e := newTestEnv(t)

	var apiErr Error
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/server", nil, &apiErr))
	assert.Equal(t, ErrCodeNotFound, apiErr.Code)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/server",
		catalog.ServerConfig{URL: "  "}, &apiErr))
	assert.Equal(t, ErrCodeValidation, apiErr.Code)

	var cfg catalog.ServerConfig
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/server",
		catalog.ServerConfig{URL: " opc.tcp://plc:4840 ", Prefix: "ns=3;s=Plant"}, &cfg))
	assert.Equal(t, "opc.tcp://plc:4840", cfg.URL)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/server", nil, &cfg))
	assert.Equal(t, "ns=3;s=Plant", cfg.Prefix)
}

func TestVariables(t *testing.T) {
	e := newTestEnv(t)

	var replaced map[string]int
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/variables",
		replaceVariablesRequest{Variables: []catalog.Variable{
			{NodeID: "ns=3;s=Plant.Tank.Level", BrowseName: "Level", DataType: "Float"},
			{NodeID: "ns=3;s=Plant.Tank.Valve", BrowseName: "Valve", DataType: "Boolean"},
			{NodeID: "ns=3;s=Plant.Pump.Speed", BrowseName: "Speed", DataType: "Int32"},
		}}, &replaced))
	assert.Equal(t, 3, replaced["count"])

	var list struct {
		Variables []catalog.Variable `json:"variables"`
		Count     int                `json:"count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/variables", nil, &list))
	assert.Equal(t, 3, list.Count)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/variables/search?q=Tank&limit=1", nil, &list))
	assert.Equal(t, 1, list.Count)

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/variables/search?q=Tank&limit=x", nil, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/variables",
		replaceVariablesRequest{Variables: []catalog.Variable{{BrowseName: "no id"}}}, nil))
}

func TestTrackingAndSelection(t *testing.T) {
	e := newTestEnv(t)
	e.configure(t)

	var sel catalog.Selection
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/tracking", nil, &sel))
	assert.Equal(t, []string{tankLevel}, sel.Nodes)

	var tracked struct {
		Variables []catalog.TrackedVariable `json:"variables"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/tracking/variables", nil, &tracked))
	assert.Equal(t, []catalog.TrackedVariable{{ID: tankLevel, DeclaredType: "Float"}}, tracked.Variables)

	var apiErr Error
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/selection",
		catalog.Selection{Nodes: []string{"ns=3;s=Missing"}}, &apiErr))
	assert.Contains(t, apiErr.Message, "ns=3;s=Missing")
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/selection",
		catalog.Selection{Pattern: "("}, nil))

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/selection",
		catalog.Selection{Pattern: "Level$", Nodes: []string{tankLevel, tankLevel}}, &sel))
	assert.Equal(t, []string{tankLevel}, sel.Nodes)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/selection", nil, &sel))
	assert.Equal(t, "Level$", sel.Pattern)
}

func TestDesignCRUD(t *testing.T) {
	e := newTestEnv(t)
	id := e.createDesign(t)

	var list struct {
		Designs []design.Design `json:"designs"`
		Count   int             `json:"count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/designs", nil, &list))
	require.Equal(t, 1, list.Count)
	assert.Empty(t, list.Designs[0].Nodes, "listing carries metadata only")

	var d design.Design
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/designs/"+id,
		updateDesignRequest{Name: "Drain tank", Description: "v2"}, &d))
	assert.Equal(t, "Drain tank", d.Name)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/api/v1/designs/"+id+"/chart",
		saveChartRequest{Nodes: json.RawMessage(`[{"id":"w","type":"wait","data":{}}]`), Edges: json.RawMessage(`[]`)}, &d))
	assert.JSONEq(t, `[{"id":"w","type":"wait","data":{}}]`, string(d.Nodes))

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPut, "/api/v1/designs/"+id+"/chart",
		saveChartRequest{Nodes: json.RawMessage(`{"not":"an array"}`)}, nil))
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/v1/designs", nil, nil))

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/v1/designs/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/designs/"+id, nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodDelete, "/api/v1/designs/"+id, nil, nil))
}

func TestRunControlErrors(t *testing.T) {
	e := newTestEnv(t)
	id := e.createDesign(t)

	var apiErr Error
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/api/v1/designs/"+id+"/execute", nil, &apiErr))
	assert.Equal(t, ErrCodeConflict, apiErr.Code)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/v1/designs/missing/execute", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/v1/designs/"+id+"/cancel", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/designs/"+id+"/status", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/designs/missing/status", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/runs/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/runs/missing/samples", nil, nil))
}

func TestExecuteRecordsRun(t *testing.T) {
	e := newTestEnv(t)
	e.configure(t)
	id := e.createDesign(t)

	var started map[string]any
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, "/api/v1/designs/"+id+"/execute", nil, &started))
	runID, _ := started["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		var st designStatus
		e.do(t, http.MethodGet, "/api/v1/designs/"+id+"/status", nil, &st)
		return st.Status == broadcast.StatusAllFinished
	}, 5*time.Second, 10*time.Millisecond)

	var st designStatus
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/designs/"+id+"/status", nil, &st))
	assert.Equal(t, runID, st.RunID)
	assert.Equal(t, broadcast.StatusFinished, st.Nodes["fill"].Status)
	assert.Equal(t, broadcast.StatusFinished, st.Nodes["hold"].Status)

	final, ok := e.plc.Get(tankLevel)
	require.True(t, ok)
	f, _ := final.Float64()
	assert.InDelta(t, 10, f, 1e-9)

	var run recording.Run
	require.Eventually(t, func() bool {
		e.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil, &run)
		return run.Status == recording.RunFinished
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, id, run.DesignID)
	assert.Positive(t, run.SampleCount)

	var runs struct {
		Runs []recording.Run `json:"runs"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/runs?limit=5", nil, &runs))
	require.Len(t, runs.Runs, 1)

	var samples struct {
		Samples []recording.Sample `json:"samples"`
		Count   int                `json:"count"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet,
		"/api/v1/runs/"+runID+"/samples?variables="+tankLevel+"&limit=2", nil, &samples))
	require.NotZero(t, samples.Count)
	assert.LessOrEqual(t, samples.Count, 2)
	assert.Equal(t, "Level", samples.Samples[0].ShortName)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/v1/runs/"+runID, nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil, nil))
}

func TestCancelRun(t *testing.T) {
	e := newTestEnv(t)
	e.configure(t)

	var d design.Design
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/v1/designs", map[string]any{
		"name":  "long wait",
		"nodes": json.RawMessage(`[{"id":"w","type":"wait","data":{"waitConfig":{"time":30}}}]`),
	}, &d))

	var started map[string]any
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, "/api/v1/designs/"+d.ID+"/execute", nil, &started))
	runID, _ := started["run_id"].(string)

	var st designStatus
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/designs/"+d.ID+"/status", nil, &st))
	assert.True(t, st.Active)

	var apiErr Error
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodDelete, "/api/v1/runs/"+runID, nil, &apiErr),
		"a recording run cannot be deleted")

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/v1/designs/"+d.ID+"/cancel", nil, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/designs/"+d.ID+"/status", nil, &st))
	assert.False(t, st.Active)
	assert.Equal(t, broadcast.StatusCancelled, st.Status)
	assert.NotEqual(t, broadcast.StatusFinished, st.Nodes["w"].Status)

	var run recording.Run
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil, &run))
	assert.Equal(t, recording.RunCancelled, run.Status)
}

func TestDesignWebSocket(t *testing.T) {
	e := newTestEnv(t)
	e.configure(t)
	id := e.createDesign(t)

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/designs/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}))
	msg := readWS(t, conn)
	assert.Equal(t, WSTypePong, msg.Type)
	assert.Equal(t, "p1", msg.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypeSnapshot, ID: "s1"}))
	msg = readWS(t, conn)
	assert.Equal(t, WSTypeError, msg.Type, "nothing has run yet")

	require.Eventually(t, func() bool { return e.srv.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusAccepted, e.do(t, http.MethodPost, "/api/v1/designs/"+id+"/execute", nil, nil))

	statuses := map[string]bool{}
	deadline := time.Now().Add(5 * time.Second)
	for !statuses[broadcast.StatusAllFinished] {
		require.True(t, time.Now().Before(deadline), "no all_finished event")
		msg = readWS(t, conn)
		if msg.Type == WSTypeEvent {
			statuses[msg.EventType] = true
		}
	}
	assert.True(t, statuses[broadcast.StatusRunning])
	assert.True(t, statuses[broadcast.StatusFinished])

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypeSnapshot, ID: "s2"}))
	for {
		msg = readWS(t, conn)
		if msg.ID == "s2" {
			break
		}
	}
	assert.Equal(t, WSTypeSnapshot, msg.Type)
}

func TestRunWebSocketUnknownRun(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/runs/nope/ws", nil, nil))
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/v1/designs/nope/ws", nil, nil))
}

func TestMetricsEndpoints(t *testing.T) {
	e := newTestEnv(t)

	var m SystemMetrics
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/metrics", nil, &m))
	assert.Equal(t, "test", m.Version)
	assert.Positive(t, m.Runtime.Goroutines)
	require.NotNil(t, m.Database)
	assert.Nil(t, m.MQTT)

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sfcd_runs_started_total")
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t)
	e.srv.cfg.CORS.AllowedOrigins = []string{"http://designer.local"}
	h := e.srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/designs", nil)
	req.Header.Set("Origin", "http://designer.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://designer.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a,, b ,"))
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}
