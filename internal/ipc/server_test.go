package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, commands chan Request, status StatusFunc) *Server {
	t.Helper()
	srv, err := NewServer(filepath.Join(t.TempDir(), "alttab.sock"), commands, status)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestShowIsForwarded(t *testing.T) {
	commands := make(chan Request, 1)
	srv := startServer(t, commands, nil)

	client := NewClientWithPath(srv.SocketPath())
	require.NoError(t, client.Show(DirectionPrevious, []string{"alt", "shift"}))

	select {
	case req := <-commands:
		assert.Equal(t, Request{Command: CommandShow, Direction: "previous", Modifiers: []string{"alt", "shift"}}, req)
	case <-time.After(time.Second):
		t.Fatal("command was not forwarded")
	}

	require.NoError(t, client.Release())
	assert.Equal(t, CommandRelease, (<-commands).Command)
	require.NoError(t, client.Cancel())
	assert.Equal(t, CommandCancel, (<-commands).Command)
}

func TestStatusIsAnsweredDirectly(t *testing.T) {
	commands := make(chan Request)
	srv := startServer(t, commands, func() StatusData {
		return StatusData{Transport: "x11", Phase: "active", WindowCount: 4, Cursor: 1, Selected: "Terminal"}
	})

	status, err := NewClientWithPath(srv.SocketPath()).Status()
	require.NoError(t, err)
	assert.True(t, status.DaemonRunning)
	assert.Equal(t, "x11", status.Transport)
	assert.Equal(t, "active", status.Phase)
	assert.Equal(t, 4, status.WindowCount)
	assert.Equal(t, "Terminal", status.Selected)
	assert.Empty(t, commands)
}

func TestInvalidRequestGetsError(t *testing.T) {
	commands := make(chan Request, 1)
	srv := startServer(t, commands, nil)

	conn, err := net.Dial("unix", srv.SocketPath())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"command":"show","direction":"up"}` + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "invalid request")
	assert.Empty(t, commands)
}

func TestClientValidatesBeforeDialing(t *testing.T) {
	client := NewClientWithPath(filepath.Join(t.TempDir(), "nobody.sock"))
	err := client.Show("sideways", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	err = client.Cancel()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is the daemon running")
}

func TestStartRefusesLiveSocket(t *testing.T) {
	srv := startServer(t, make(chan Request), nil)

	other, err := NewServer(srv.SocketPath(), make(chan Request), nil)
	require.NoError(t, err)
	assert.Error(t, other.Start())
}

func TestStartReplacesStaleSocketAndStopRemovesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alttab.sock")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	srv, err := NewServer(path, make(chan Request), nil)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	srv.Stop()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
