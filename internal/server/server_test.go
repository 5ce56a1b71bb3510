package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxagg/aggregator/internal/httpwire"
	"github.com/wxagg/aggregator/internal/pipeline"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Config{
		Addr:          "127.0.0.1:0",
		DataFile:      filepath.Join(t.TempDir(), "weather_data.json"),
		TTL:           30 * time.Second,
		SweepInterval: time.Hour,
		QueueDepth:    4,
		PoolSize:      2,
		DrainTimeout:  2 * time.Second,
	})
	require.NoError(t, s.Start())
	<-s.Ready()
	t.Cleanup(s.Stop)
	return s
}

func sendRaw(t *testing.T, addr string, raw string) (status int, headers map[string]string, body string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	require.NoError(t, err)
	parts := strings.Fields(statusLine)
	require.True(t, len(parts) >= 2)
	fmt.Sscanf(parts[1], "%d", &status)

	headers = make(map[string]string)
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		require.True(t, ok)
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		headers[name] = value
		if name == "content-length" {
			fmt.Sscanf(value, "%d", &contentLength)
		}
	}

	buf := make([]byte, contentLength)
	if contentLength > 0 {
		_, err = r.Read(buf)
		require.NoError(t, err)
	}
	body = string(buf)
	return
}

func putRequest(id string, clock int, extra string) string {
	payload := fmt.Sprintf(`{"id":"%s"%s}`, id, extra)
	return fmt.Sprintf(
		"PUT /weather.json HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: %d\r\nLamport-Clock: %d\r\n\r\n%s",
		len(payload), clock, payload,
	)
}

func getRequest(path string, clock int) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nLamport-Clock: %d\r\n\r\n", path, clock)
}

func TestFirstPublishThenRead(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	status, _, _ := sendRaw(t, addr, putRequest("VIC01", 1, `,"air_temp":20.1`))
	assert.Equal(t, 201, status)

	status, _, body := sendRaw(t, addr, getRequest("/weather.json", 1))
	assert.Equal(t, 200, status)
	assert.Contains(t, body, "VIC01")
}

func TestUpdateSameStationReturns200(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	status, _, _ := sendRaw(t, addr, putRequest("VIC01", 1, ""))
	require.Equal(t, 201, status)

	status, _, _ = sendRaw(t, addr, putRequest("VIC01", 2, `,"air_temp":30`))
	assert.Equal(t, 200, status)
}

func TestClockReplayRejected(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	require.Equal(t, 201, first(sendRaw(t, addr, putRequest("VIC01", 1, ""))))
	require.Equal(t, 200, first(sendRaw(t, addr, putRequest("VIC01", 2, ""))))
	assert.Equal(t, 400, first(sendRaw(t, addr, putRequest("VIC01", 2, ""))))
}

func TestFilteredGetAcrossStations(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	require.Equal(t, 201, first(sendRaw(t, addr, putRequest("SA01", 1, ""))))
	require.Equal(t, 201, first(sendRaw(t, addr, putRequest("QLD01", 1, ""))))

	_, _, body := sendRaw(t, addr, getRequest("/weather.json?stationID=SA01", 1))
	assert.Contains(t, body, "SA01")
	assert.NotContains(t, body, "QLD01")

	_, _, body = sendRaw(t, addr, getRequest("/weather.json?stationID=QLD01", 2))
	assert.Contains(t, body, "QLD01")

	_, _, body = sendRaw(t, addr, getRequest("/weather.json?stationID=missing", 3))
	assert.JSONEq(t, "[]", body)
}

func TestEmptyPutBodyReturns204(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	raw := "PUT /weather.json HTTP/1.1\r\nContent-Length: 0\r\nLamport-Clock: 1\r\n\r\n"
	status, _, _ := sendRaw(t, addr, raw)
	assert.Equal(t, 204, status)
}

func TestUnsupportedMethodIsBadRequest(t *testing.T) {
	s := startTestServer(t)
	addr := s.Addr().String()

	raw := "DELETE /weather.json HTTP/1.1\r\n\r\n"
	status, _, _ := sendRaw(t, addr, raw)
	assert.Equal(t, 400, status)
}

func TestQueueFullReturns503WithBodyThenRecoversAfterDraining(t *testing.T) {
	s := New(Config{
		Addr:          "127.0.0.1:0",
		DataFile:      filepath.Join(t.TempDir(), "weather_data.json"),
		TTL:           30 * time.Second,
		SweepInterval: time.Hour,
		QueueDepth:    1,
		PoolSize:      1,
		DrainTimeout:  2 * time.Second,
	})

	// Occupy the sole queue slot directly, before any worker goroutine is
	// running to consume it, so the next Submit is guaranteed to fail.
	occupant := &pipeline.Item{Kind: pipeline.KindGet, Peer: "occupant", Clock: 1, Result: make(chan pipeline.Result, 1)}
	require.True(t, s.worker.Submit(occupant))

	getReq := &httpwire.Request{
		Method:  "GET",
		Path:    "/weather.json",
		Headers: map[string]string{"lamport-clock": "2"},
	}
	status, body := s.dispatchGet(context.Background(), getReq, "reader")
	assert.Equal(t, 503, status)
	assert.Equal(t, pipeline.OverloadedBody, body)
	assert.NotEmpty(t, body)

	// Draining empties the queue; once a worker is running to consume the
	// next submission, the same request succeeds.
	s.worker.Drain()

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.worker.Run(workerCtx)

	getReq.Headers["lamport-clock"] = "3"
	status, body = s.dispatchGet(context.Background(), getReq, "reader")
	assert.Equal(t, 200, status)
	assert.JSONEq(t, "[]", string(body))
}

func first(status int, _ map[string]string, _ string) int { return status }
