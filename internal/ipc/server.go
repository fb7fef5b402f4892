package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/alttab/internal/logger"
	"github.com/1broseidon/alttab/internal/runtimepath"
	"github.com/rs/zerolog"
)

const (
	forwardTimeout = 2 * time.Second
	readTimeout    = 5 * time.Second
	maxRequestSize = 4096
)

// StatusFunc reports the daemon state for the status command. It is called
// from connection goroutines.
type StatusFunc func() StatusData

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	commands     chan<- Request
	status       StatusFunc
	log          *zerolog.Logger
	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.Mutex
	conns        sync.WaitGroup
}

// NewServer creates a server that forwards accepted commands to commands. An
// empty socketPath uses the runtime socket path.
func NewServer(socketPath string, commands chan<- Request, status StatusFunc) (*Server, error) {
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}

	return &Server{
		socketPath: socketPath,
		commands:   commands,
		status:     status,
		log:        logger.WithComponent("ipc"),
		startTime:  time.Now(),
	}, nil
}

// SocketPath returns the listening socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections. It refuses to replace the
// socket of a daemon that is still answering.
func (s *Server) Start() error {
	if conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("daemon already listening on %s", s.socketPath)
	}
	// Remove a stale socket left by a crashed daemon.
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.log.Info().Str("socket", s.socketPath).Msg("IPC server listening")

	go s.acceptLoop()
	return nil
}

func (s *Server) stopping() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.shuttingDown
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.stopping() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("IPC accept error")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	ok, err := VerifyPeerIsCurrentUser(conn)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read peer credentials")
		return
	}
	if !ok {
		s.log.Warn().Msg("Rejected IPC connection from another user")
		return
	}

	_ = conn.SetDeadline(time.Now().Add(readTimeout))
	reader := bufio.NewReader(io.LimitReader(conn, maxRequestSize))

	// One JSON request per line.
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.log.Debug().Err(err).Msg("IPC read error")
		return
	}

	resp := s.handleRequest(data)

	respData, err := resp.Marshal()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal response")
		return
	}
	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.log.Debug().Err(err).Msg("Failed to send response")
	}
}

func (s *Server) handleRequest(data []byte) *Response {
	req, err := ParseRequest(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("Dropping invalid request")
		return NewErrorResponse(err.Error())
	}

	if req.Command == CommandStatus {
		return s.handleStatus()
	}

	timer := time.NewTimer(forwardTimeout)
	defer timer.Stop()
	select {
	case s.commands <- *req:
		s.log.Debug().Str("command", string(req.Command)).Str("direction", req.Direction).Strs("modifiers", req.Modifiers).Msg("Command accepted")
		resp, _ := NewOKResponse(nil)
		return resp
	case <-timer.C:
		return NewErrorResponse("daemon busy")
	}
}

func (s *Server) handleStatus() *Response {
	var data StatusData
	if s.status != nil {
		data = s.status()
	}
	data.DaemonRunning = true
	data.UptimeSeconds = int64(time.Since(s.startTime).Seconds())

	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// Stop closes the listener, waits for open connections and removes the
// socket file.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}
