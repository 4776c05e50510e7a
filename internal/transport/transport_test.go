package transport

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	srv := NewServer("127.0.0.1:0", testLogger())
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, NewClient(srv.Addr().String(), 2*time.Second)
}

func TestUnaryRoundTrip(t *testing.T) {
	srv, client := startTestServer(t)
	srv.Handle(MethodHealth, func(req *Request, identity any) Response {
		return SuccessResponse(req.ReqID, map[string]any{"status": "ok"})
	})

	resp, err := client.Call(MethodHealth, "", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !resp.OK || !resp.Final {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, client := startTestServer(t)

	resp, err := client.Call("no_such_method", "", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.OK || resp.Error == nil {
		t.Fatalf("expected error response, got %+v", resp)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	srv, client := startTestServer(t)
	srv.HandleStream(MethodStreamTaskOutput, func(req *Request, identity any, send func(any, bool) error) {
		send(map[string]any{"chunk": 1}, false)
		send(map[string]any{"chunk": 2}, true)
	})

	var chunks []int
	err := client.CallStream(MethodStreamTaskOutput, "", nil, func(resp *Response) error {
		m := resp.Result.(map[string]any)
		chunks = append(chunks, int(m["chunk"].(float64)))
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != 1 || chunks[1] != 2 {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(token string) (any, error) {
	return nil, errAuthFailed
}

var errAuthFailed = &authError{"invalid token"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

func TestAuthenticationFailureRejectsRequest(t *testing.T) {
	srv := NewServer("127.0.0.1:0", testLogger()).WithAuthenticator(failingAuthenticator{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	srv.Handle(MethodHealth, func(req *Request, identity any) Response {
		return SuccessResponse(req.ReqID, "should not be reached")
	})

	client := NewClient(srv.Addr().String(), 2*time.Second)
	resp, err := client.Call(MethodHealth, "bad-token", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.OK {
		t.Fatal("expected authentication failure to reject the request")
	}
}
