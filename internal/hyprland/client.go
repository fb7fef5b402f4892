// Package hyprland talks to a running Hyprland instance through its command
// socket (.socket.sock) and event socket (.socket2.sock).
package hyprland

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/1broseidon/alttab/internal/platform"
)

// DefaultCommandTimeout bounds one command socket round trip.
const DefaultCommandTimeout = 1 * time.Second

// Client sends requests to the command socket. Hyprland serves one request
// per connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a client for the socket at path.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Workspace is the workspace reference embedded in client info.
type Workspace struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ClientInfo is one entry of `j/clients`.
type ClientInfo struct {
	Address        string    `json:"address"`
	Mapped         bool      `json:"mapped"`
	Hidden         bool      `json:"hidden"`
	At             [2]int    `json:"at"`
	Size           [2]int    `json:"size"`
	Workspace      Workspace `json:"workspace"`
	Floating       bool      `json:"floating"`
	Class          string    `json:"class"`
	Title          string    `json:"title"`
	PID            int       `json:"pid"`
	FocusHistoryID int       `json:"focusHistoryID"`
}

// Bounds returns the client geometry in layout coordinates.
func (c ClientInfo) Bounds() platform.Rect {
	return platform.Rect{X: c.At[0], Y: c.At[1], Width: c.Size[0], Height: c.Size[1]}
}

// Command sends raw and returns the full response.
func (c *Client) Command(ctx context.Context, raw string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hyprland: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := io.WriteString(conn, raw); err != nil {
		return nil, fmt.Errorf("failed to send %q: %w", commandName(raw), err)
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q response: %w", commandName(raw), err)
	}
	return resp, nil
}

// Clients returns mapped, visible clients ordered by focus history, most
// recent first.
func (c *Client) Clients(ctx context.Context) ([]ClientInfo, error) {
	resp, err := c.Command(ctx, "j/clients")
	if err != nil {
		return nil, err
	}
	var all []ClientInfo
	if err := json.Unmarshal(resp, &all); err != nil {
		return nil, fmt.Errorf("failed to parse clients: %w", err)
	}

	clients := all[:0]
	for _, ci := range all {
		if !ci.Mapped || ci.Hidden {
			continue
		}
		if _, err := parseAddress(ci.Address); err != nil {
			continue
		}
		clients = append(clients, ci)
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return focusRank(clients[i]) < focusRank(clients[j])
	})
	return clients, nil
}

// Dispatch runs a dispatcher such as `focuswindow address:0x...`.
func (c *Client) Dispatch(ctx context.Context, args string) error {
	resp, err := c.Command(ctx, "dispatch "+args)
	if err != nil {
		return err
	}
	if out := strings.TrimSpace(string(resp)); out != "ok" {
		return fmt.Errorf("dispatch %s: %s", args, out)
	}
	return nil
}

// FocusWindow focuses the client with the given address.
func (c *Client) FocusWindow(ctx context.Context, id platform.WindowID) error {
	return c.Dispatch(ctx, "focuswindow address:"+id.String())
}

// focusRank orders clients that were never focused (-1) last.
func focusRank(c ClientInfo) int {
	if c.FocusHistoryID < 0 {
		return math.MaxInt
	}
	return c.FocusHistoryID
}

// parseAddress accepts addresses with or without the 0x prefix. Socket2
// events omit it, j/clients includes it.
func parseAddress(s string) (platform.WindowID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("null address")
	}
	return platform.WindowID(v), nil
}

func commandName(raw string) string {
	if i := strings.IndexByte(raw, ' '); i >= 0 {
		return raw[:i]
	}
	return raw
}
