// Package client connects to the daemon's broadcast socket and decodes its
// push-based message stream, auto-starting the daemon on first connect the
// same way the original process-manager client did.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ngrantham/pausewatch/internal/daemon"
	"github.com/ngrantham/pausewatch/internal/protocol"
)

// Client streams newline-delimited JSON messages from the daemon's socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	home    string
}

// New connects to the daemon, auto-starting it if it isn't already running.
func New() (*Client, error) {
	home := daemon.Home()
	c := &Client{home: home}
	if err := c.ensureDaemon(); err != nil {
		return nil, err
	}
	return c, nil
}

// TryConnect connects to an already-running daemon without auto-starting one.
func TryConnect() (*Client, error) {
	home := daemon.Home()
	c := &Client{home: home}
	sockPath := filepath.Join(home, "daemon.sock")
	if err := c.tryConnect(sockPath); err != nil {
		return nil, err
	}
	return c, nil
}

// ReadMessage blocks for the next newline-delimited message and reports
// which envelope type it carries; callers re-decode into the concrete type.
func (c *Client) ReadMessage() (protocol.MessageType, []byte, error) {
	if c.scanner == nil {
		c.scanner = bufio.NewScanner(c.conn)
		c.scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	}
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", nil, fmt.Errorf("read message: %w", err)
		}
		return "", nil, fmt.Errorf("connection closed")
	}
	line := c.scanner.Bytes()
	var env protocol.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	data := make([]byte, len(line))
	copy(data, line)
	return env.Type, data, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Home returns the daemon's state directory.
func (c *Client) Home() string { return c.home }

func (c *Client) ensureDaemon() error {
	sockPath := filepath.Join(c.home, "daemon.sock")

	if err := c.tryConnect(sockPath); err == nil {
		return nil
	}

	c.cleanStaleSocket(sockPath)

	if err := c.startDaemon(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := c.tryConnect(sockPath); err == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("daemon failed to start within 5s")
}

func (c *Client) tryConnect(sockPath string) error {
	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) cleanStaleSocket(sockPath string) {
	pidPath := filepath.Join(c.home, "daemon.pid")
	data, err := os.ReadFile(pidPath)
	if err != nil {
		os.Remove(sockPath)
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(sockPath)
		os.Remove(pidPath)
		return
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(sockPath)
		os.Remove(pidPath)
		return
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(sockPath)
		os.Remove(pidPath)
	}
}

func (c *Client) startDaemon() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot find pausewatchd binary: %w", err)
	}
	self, _ = filepath.EvalSymlinks(self)

	cmd := exec.Command(self, "daemon")
	cmd.Env = os.Environ()

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		devnull.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	cmd.Process.Release()
	devnull.Close()
	return nil
}
