package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink/sqlitestore"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeReader struct {
	latest   *types.Diagnostics
	profiles map[string]map[network.SegmentID]*profile.Profile
	pingErr  error
}

func (f *fakeReader) LatestRun(context.Context) (*types.Diagnostics, error) {
	if f.latest == nil {
		return nil, sqlitestore.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeReader) Rivers(_ context.Context, runID string) ([]sqlitestore.River, error) {
	rivers := []sqlitestore.River{}
	for head, p := range f.profiles[runID] {
		rivers = append(rivers, sqlitestore.River{RunID: runID, Head: head, Outlet: p.Outlet, Summary: p.Summary})
	}
	return rivers, nil
}

func (f *fakeReader) Profile(_ context.Context, runID string, head network.SegmentID) (*profile.Profile, error) {
	p, ok := f.profiles[runID][head]
	if !ok {
		return nil, sqlitestore.ErrNotFound
	}
	return p, nil
}

func (f *fakeReader) Ping(context.Context) error { return f.pingErr }

func newReader() *fakeReader {
	return &fakeReader{
		latest: &types.Diagnostics{RunID: "latest", Selected: 1, Extracted: 1},
		profiles: map[string]map[network.SegmentID]*profile.Profile{
			"latest": {7: {Head: 7, Outlet: 9, Segments: []network.SegmentID{7, 9}, Summary: profile.Summary{Vertices: 3}}},
			"older":  {1: {Head: 1, Outlet: 1}, 2: {Head: 2, Outlet: 2}},
		},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := New(newReader(), promhttp.Handler(), zap.NewNop().Sugar()).Handler()

	tests := []struct {
		name   string
		target string
		status int
		check  func(t *testing.T, body []byte)
	}{
		{name: "rivers of latest run", target: "/rivers", status: http.StatusOK, check: func(t *testing.T, body []byte) {
			var l RiverList
			require.NoError(t, json.Unmarshal(body, &l))
			assert.Equal(t, "latest", l.RunID)
			require.Len(t, l.Rivers, 1)
			assert.Equal(t, network.SegmentID(7), l.Rivers[0].Head)
		}},
		{name: "rivers of named run", target: "/rivers?run=older", status: http.StatusOK, check: func(t *testing.T, body []byte) {
			var l RiverList
			require.NoError(t, json.Unmarshal(body, &l))
			assert.Len(t, l.Rivers, 2)
		}},
		{name: "one river", target: "/rivers/7", status: http.StatusOK, check: func(t *testing.T, body []byte) {
			var p profile.Profile
			require.NoError(t, json.Unmarshal(body, &p))
			assert.Equal(t, network.SegmentID(9), p.Outlet)
			assert.Equal(t, 3, p.Summary.Vertices)
		}},
		{name: "unknown river", target: "/rivers/8", status: http.StatusNotFound},
		{name: "non numeric head", target: "/rivers/abc", status: http.StatusNotFound},
		{name: "diagnostics", target: "/diagnostics/latest", status: http.StatusOK, check: func(t *testing.T, body []byte) {
			var d types.Diagnostics
			require.NoError(t, json.Unmarshal(body, &d))
			assert.Equal(t, "latest", d.RunID)
		}},
		{name: "health", target: "/healthz", status: http.StatusOK},
		{name: "metrics", target: "/metrics", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
			}
		})
	}
}

func TestRoutesWithoutRuns(t *testing.T) {
	r := &fakeReader{pingErr: errors.New("database is locked")}
	h := New(r, nil, zap.NewNop().Sugar()).Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/rivers").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/diagnostics/latest").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestMsgPackFormat(t *testing.T) {
	h := New(newReader(), nil, zap.NewNop().Sugar()).Handler()
	rec := get(t, h, "/rivers/7?format=msgpack")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))
}

func TestServeSharesPortWithGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := New(newReader(), nil, zap.NewNop().Sugar())
	go func() { done <- s.Serve(ctx, lis) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	rpcCtx, rpcCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer rpcCancel()
	hc, err := healthpb.NewHealthClient(conn).Check(rpcCtx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
