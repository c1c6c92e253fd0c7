package qemu

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/chassis/pkg/model"
	"github.com/newtron-network/chassis/pkg/sde"
)

// fakeMonitor accepts monitor connections and answers each command with the
// canned reply for its verb, echoing the command first like a real monitor.
type fakeMonitor struct {
	ln      net.Listener
	replies map[string]string

	mu   sync.Mutex
	cmds []string
}

func newFakeMonitor(t *testing.T, replies map[string]string) *fakeMonitor {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeMonitor{ln: ln, replies: replies}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeMonitor) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeMonitor) handle(conn net.Conn) {
	defer conn.Close()
	conn.Write([]byte("QEMU 8.2.0 monitor - type 'help' for more information\r\n" + prompt))
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		f.mu.Lock()
		f.cmds = append(f.cmds, cmd)
		f.mu.Unlock()
		verb, _, _ := strings.Cut(cmd, " ")
		conn.Write([]byte(cmd + "\r\n" + f.replies[verb] + prompt))
	}
}

func (f *fakeMonitor) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeMonitor) params(t *testing.T) sde.HotplugParams {
	t.Helper()
	host, port, err := net.SplitHostPort(f.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := strconv.Atoi(port)
	return sde.HotplugParams{
		SocketIP:         host,
		SocketPort:       uint32(p),
		VMMAC:            "52:54:00:00:00:01",
		NetdevID:         "net0",
		ChardevID:        "char0",
		DeviceID:         "dev0",
		NativeSocketPath: "/tmp/vhost-user-0",
		Action:           model.HotplugAdd,
	}
}

func TestAttachCommands(t *testing.T) {
	p := sde.HotplugParams{
		VMMAC: "52:54:00:00:00:01", NetdevID: "net0", ChardevID: "char0",
		DeviceID: "dev0", NativeSocketPath: "/tmp/sock",
	}
	want := []string{
		"chardev_add socket,id=char0,path=/tmp/sock",
		"netdev_add vhost-user,id=net0,chardev=char0",
		"device_add virtio-net-pci,mac=52:54:00:00:00:01,netdev=net0,id=dev0",
	}
	got := AttachCommands(p)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AttachCommands()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	undo := DetachCommands(p)
	if undo[0] != "device_del dev0" || undo[2] != "chardev_del char0" {
		t.Errorf("DetachCommands() = %v", undo)
	}
}

func TestAttachDetach(t *testing.T) {
	f := newFakeMonitor(t, nil)
	m := &Monitor{Timeout: 2 * time.Second}
	p := f.params(t)

	if err := m.Attach(p); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := m.Detach(p); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	cmds := f.commands()
	if len(cmds) != 6 {
		t.Fatalf("got %d commands, want 6: %v", len(cmds), cmds)
	}
	if !strings.HasPrefix(cmds[2], "device_add") || !strings.HasPrefix(cmds[3], "device_del") {
		t.Errorf("unexpected command order: %v", cmds)
	}
}

func TestAttachRollsBackOnFailure(t *testing.T) {
	f := newFakeMonitor(t, map[string]string{
		"device_add": "Error: Duplicate device ID 'dev0'\r\n",
	})
	m := &Monitor{Timeout: 2 * time.Second}

	err := m.Attach(f.params(t))
	if err == nil {
		t.Fatal("Attach() should fail")
	}
	if !strings.Contains(err.Error(), "Duplicate device ID") {
		t.Errorf("error = %v, want monitor message", err)
	}

	cmds := f.commands()
	want := []string{"chardev_add", "netdev_add", "device_add", "netdev_del", "chardev_del"}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %v, want verbs %v", cmds, want)
	}
	for i, verb := range want {
		if !strings.HasPrefix(cmds[i], verb) {
			t.Errorf("command %d = %q, want %s", i, cmds[i], verb)
		}
	}
}

func TestAttachUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	m := &Monitor{Timeout: time.Second}
	err = m.Attach(sde.HotplugParams{SocketIP: "127.0.0.1", SocketPort: uint32(addr.Port)})
	if err == nil || !strings.Contains(err.Error(), "connect monitor") {
		t.Errorf("Attach() error = %v, want connect failure", err)
	}
}

func TestResponseText(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		out  string
		want string
	}{
		{"echo only", "netdev_del net0", "netdev_del net0\r\n", ""},
		{"escapes", "device_del dev0", "\x1b[Kdevice_del dev0\r\n\x1b[D", ""},
		{"error", "device_del dev0", "device_del dev0\r\nDevice 'dev0' not found\r\n", "Device 'dev0' not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := responseText(tt.cmd, tt.out); got != tt.want {
				t.Errorf("responseText() = %q, want %q", got, tt.want)
			}
		})
	}
}
