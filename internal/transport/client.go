package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client is a short-lived connection to a gateway, suitable for CLI
// control commands that issue a single call and exit.
type Client struct {
	addr    string
	timeout time.Duration
}

func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// Call dials, sends one request, reads one response, and closes the
// connection. Not suitable for stream_task_output; use CallStream.
func (c *Client) Call(method string, token string, params map[string]any) (*Response, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	req := &Request{V: ProtocolVersion, ReqID: uuid.NewString(), Method: method, Params: params}
	if token != "" {
		req.Auth = &Auth{Token: token}
	}
	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	return ReadResponse(conn)
}

// CallStream dials, sends one request, and invokes onChunk for each
// response frame until one arrives with Final=true.
func (c *Client) CallStream(method string, token string, params map[string]any, onChunk func(*Response) error) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	req := &Request{V: ProtocolVersion, ReqID: uuid.NewString(), Method: method, Params: params}
	if token != "" {
		req.Auth = &Auth{Token: token}
	}
	if err := WriteFrame(conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	for {
		resp, err := ReadResponse(conn)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := onChunk(resp); err != nil {
			return err
		}
		if resp.Final {
			return nil
		}
	}
}
