package broadcast

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngrantham/pausewatch/internal/protocol"
)

func TestClientReceivesInitialStateThenSample(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	initial := protocol.InitialStateMessage{Type: protocol.MessageInitialState, DaemonPID: 42}
	srv, err := New(sockPath, nil, func() protocol.InitialStateMessage { return initial })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read initial_state: %v", err)
	}
	var got protocol.InitialStateMessage
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.DaemonPID != 42 {
		t.Fatalf("expected daemon_pid 42, got %d", got.DaemonPID)
	}

	deadline := time.Now()
	for srv.ClientCount() != 1 && time.Since(deadline) < time.Second {
		time.Sleep(time.Millisecond)
	}

	srv.Broadcast(protocol.SampleMessage{Type: protocol.MessageSample, MaxScore: 77})
	line, err = reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var sample protocol.SampleMessage
	if err := json.Unmarshal(line, &sample); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if sample.MaxScore != 77 {
		t.Fatalf("expected max_score 77, got %d", sample.MaxScore)
	}
}

func TestBroadcastDropsClosedClient(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv, err := New(sockPath, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	deadline := time.Now()
	for srv.ClientCount() != 1 && time.Since(deadline) < time.Second {
		time.Sleep(time.Millisecond)
	}
	conn.Close()

	srv.Broadcast(protocol.SampleMessage{Type: protocol.MessageSample})

	deadline = time.Now()
	for srv.ClientCount() != 0 && time.Since(deadline) < time.Second {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 0 {
		t.Fatalf("expected closed client dropped, count=%d", srv.ClientCount())
	}
}
