package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pinaire1/jujitsu-app/internal/analysis"
	"github.com/Pinaire1/jujitsu-app/internal/models"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubPublishFiltersByAnalysis(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	a := dialWS(t, srv, "?analysis_id=a1")
	b := dialWS(t, srv, "?analysis_id=b1")

	welcome := readMessage(t, a)
	assert.Equal(t, MessageWelcome, welcome.Type)
	assert.True(t, strings.HasPrefix(welcome.ClientID, "client-"))
	assert.Equal(t, "a1", welcome.AnalysisID)
	assert.Equal(t, MessageWelcome, readMessage(t, b).Type)
	assert.Equal(t, 2, hub.Count())

	hub.Publish("b1", Message{Type: MessageEvent, Payload: "for b"})
	hub.Publish("a1", Message{Type: MessageComplete, Payload: "for a"})

	got := readMessage(t, a)
	assert.Equal(t, MessageComplete, got.Type)
	assert.Equal(t, "for a", got.Payload)

	got = readMessage(t, b)
	assert.Equal(t, MessageEvent, got.Type)
	assert.Equal(t, "b1", got.AnalysisID)
}

func TestHubIgnoresClientChosenIDs(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	first := dialWS(t, srv, "?analysis_id=a1&clientId=shared")
	firstWelcome := readMessage(t, first)
	second := dialWS(t, srv, "?analysis_id=a1&clientId=shared")
	secondWelcome := readMessage(t, second)

	assert.NotEqual(t, "shared", firstWelcome.ClientID)
	assert.NotEqual(t, firstWelcome.ClientID, secondWelcome.ClientID)
	assert.Equal(t, 2, hub.Count())

	hub.Publish("a1", Message{Type: MessageComplete})
	assert.Equal(t, MessageComplete, readMessage(t, first).Type)
	assert.Equal(t, MessageComplete, readMessage(t, second).Type)
}

func TestHubPing(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()
	defer hub.Close()

	conn := dialWS(t, srv, "")
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: MessagePing}))
	assert.Equal(t, MessagePong, readMessage(t, conn).Type)
}

func TestHubRejectsOrigin(t *testing.T) {
	hub := NewHub(CheckOrigin([]string{"https://*.vercel.app"}), nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://app.vercel.app"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestUploadProgressOverWebsocket(t *testing.T) {
	gate := make(chan struct{})
	fa := &fakeAnalyzer{fn: func(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return ruleReport(ctx, req)
	}}
	hub := NewHub(nil, nil, nil)
	defer hub.Close()
	_, routes := newTestHandler(t, Options{Analyzer: fa, Hub: hub})
	srv := httptest.NewServer(routes)
	defer srv.Close()

	body, ct := multipartBody(t, "file", "roll.mp4", "video/mp4", []byte("fake mp4"))
	resp, err := http.Post(srv.URL+"/api/upload-video?user_id=u1", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var upload models.UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upload))

	conn := dialWS(t, srv, "?analysis_id="+upload.AnalysisID)
	assert.Equal(t, MessageWelcome, readMessage(t, conn).Type)
	close(gate)

	ev := readMessage(t, conn)
	assert.Equal(t, MessageEvent, ev.Type)
	assert.Equal(t, upload.AnalysisID, ev.AnalysisID)

	done := readMessage(t, conn)
	require.Equal(t, MessageComplete, done.Type)
	raw, err := json.Marshal(done.Payload)
	require.NoError(t, err)
	var result models.AnalyzeResponse
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, upload.AnalysisID, result.AnalysisID)
	require.Len(t, result.Insights, 1)
	assert.Equal(t, models.Seconds(3), result.Insights[0].Timestamp)
}
