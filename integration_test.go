// integration_test.go
package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markb/workhub/internal/auth"
	"github.com/markb/workhub/internal/realtime"
	"github.com/markb/workhub/internal/server"
	"github.com/markb/workhub/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-min-32-characters"

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, base string, authSvc *auth.Service, identity string) *client {
	t.Helper()
	token, err := authSvc.IssueToken(identity, time.Hour)
	require.NoError(t, err)

	u := "ws" + strings.TrimPrefix(base, "http") + "/realtime/v1/websocket?access_token=" + url.QueryEscape(token)
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event, topic, ref string, payload map[string]any) {
	require.NoError(c.t, c.ws.WriteJSON(realtime.Frame{Event: event, Topic: topic, Ref: ref, Payload: payload}))
}

// expect reads frames until one with the given event (and ref, for replies) arrives.
func (c *client) expect(event, ref string) realtime.Frame {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f realtime.Frame
		require.NoError(c.t, c.ws.ReadJSON(&f))
		if f.Event == event && (ref == "" || f.Ref == ref) {
			return f
		}
	}
}

func (c *client) expectOK(ref string) map[string]any {
	c.t.Helper()
	f := c.expect(realtime.FrameReply, ref)
	require.Equal(c.t, realtime.StatusOK, f.Payload["status"], "reply %s: %v", ref, f.Payload)
	resp, _ := f.Payload["response"].(map[string]any)
	return resp
}

func TestFullMessagingFlow(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	authSvc := auth.NewService(testSecret)
	rt, err := realtime.NewService(st, server.Authenticator(authSvc), realtime.DefaultConfig(), realtime.Telemetry{})
	require.NoError(t, err)
	srv := server.New(server.DefaultConfig(), authSvc, rt, nil)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// 1. Alice and Bob join the team channel
	alice := dial(t, ts.URL, authSvc, "alice")
	alice.send(realtime.FrameJoin, "team", "1", nil)
	joined := alice.expect(string(realtime.EventMemberJoined), "")
	assert.Equal(t, "alice", joined.Payload["identity"])
	alice.expectOK("1")

	bob := dial(t, ts.URL, authSvc, "bob")
	bob.send(realtime.FrameJoin, "team", "1", nil)
	bob.expectOK("1")

	joined = alice.expect(string(realtime.EventMemberJoined), "")
	assert.Equal(t, "bob", joined.Payload["identity"])

	// 2. Alice sends, both receive
	alice.send(realtime.FrameSend, "team", "2", map[string]any{"body": "hello team"})
	ack := alice.expectOK("2")
	assert.NotEmpty(t, ack["id"])

	got := bob.expect(string(realtime.EventMessageReceived), "")
	assert.Equal(t, "team", got.Topic)
	assert.Equal(t, "alice", got.Payload["sender"])
	assert.Equal(t, "hello team", got.Payload["body"])
	assert.Equal(t, ack["id"], got.Payload["id"])

	// 3. Bob disconnects, Alice is told
	bob.ws.Close()
	left := alice.expect(string(realtime.EventMemberLeft), "")
	assert.Equal(t, "bob", left.Payload["identity"])

	// 4. Sending to a channel Alice never joined is rejected
	alice.send(realtime.FrameSend, "random", "3", map[string]any{"body": "hi"})
	reply := alice.expect(realtime.FrameReply, "3")
	resp := reply.Payload["response"].(map[string]any)
	assert.Equal(t, realtime.ErrorCode(realtime.ErrNotAMember), resp["code"])

	// 5. Bob reads what he missed over the history API
	token, err := authSvc.IssueToken("bob", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/channels/team/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	msgs, err := st.ListRecent(t.Context(), "team", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello team", msgs[0].Body)
	assert.Equal(t, "alice", msgs[0].Sender)
}
