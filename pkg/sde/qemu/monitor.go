// Package qemu drives the QEMU human monitor to hot-attach vhost-user ports
// to a running guest.
package qemu

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/newtron-network/chassis/pkg/sde"
	"github.com/newtron-network/chassis/pkg/util"
)

const (
	prompt         = "(qemu) "
	defaultTimeout = 5 * time.Second
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Monitor issues hotplug commands over a monitor socket started with
// "-monitor tcp:<ip>:<port>,server,nowait". Each Attach or Detach opens its
// own connection.
type Monitor struct {
	Timeout time.Duration
}

// NewMonitor creates a monitor client with the default timeout.
func NewMonitor() *Monitor {
	return &Monitor{Timeout: defaultTimeout}
}

// AttachCommands returns the monitor commands that plug a vhost-user NIC.
func AttachCommands(p sde.HotplugParams) []string {
	return []string{
		fmt.Sprintf("chardev_add socket,id=%s,path=%s", p.ChardevID, p.NativeSocketPath),
		fmt.Sprintf("netdev_add vhost-user,id=%s,chardev=%s", p.NetdevID, p.ChardevID),
		fmt.Sprintf("device_add virtio-net-pci,mac=%s,netdev=%s,id=%s", p.VMMAC, p.NetdevID, p.DeviceID),
	}
}

// DetachCommands returns the monitor commands that unplug the NIC, in
// reverse order of AttachCommands.
func DetachCommands(p sde.HotplugParams) []string {
	return []string{
		"device_del " + p.DeviceID,
		"netdev_del " + p.NetdevID,
		"chardev_del " + p.ChardevID,
	}
}

// Attach plugs the NIC. If a later step fails the earlier ones are undone on
// a best-effort basis.
func (m *Monitor) Attach(p sde.HotplugParams) error {
	s, err := m.open(p.MonitorAddr())
	if err != nil {
		return err
	}
	defer s.close()

	attach := AttachCommands(p)
	undo := DetachCommands(p)
	for i, cmd := range attach {
		if err := s.run(cmd); err != nil {
			// undo holds the reverse of attach, so the last i entries of it
			// remove what has already been added.
			for _, u := range undo[len(undo)-i:] {
				if uerr := s.run(u); uerr != nil {
					util.WithField("monitor", p.MonitorAddr()).Debugf("qemu: rollback %q: %v", u, uerr)
				}
			}
			return err
		}
	}
	util.WithField("monitor", p.MonitorAddr()).Infof("qemu: attached %s (mac %s)", p.DeviceID, p.VMMAC)
	return nil
}

// Detach unplugs the NIC.
func (m *Monitor) Detach(p sde.HotplugParams) error {
	s, err := m.open(p.MonitorAddr())
	if err != nil {
		return err
	}
	defer s.close()

	for _, cmd := range DetachCommands(p) {
		if err := s.run(cmd); err != nil {
			return err
		}
	}
	util.WithField("monitor", p.MonitorAddr()).Infof("qemu: detached %s", p.DeviceID)
	return nil
}

type session struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

func (m *Monitor) open(addr string) (*session, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("qemu: connect monitor %s: %w", addr, err)
	}
	s := &session{conn: conn, r: bufio.NewReader(conn), timeout: timeout}
	// Discard the banner.
	if _, err := s.readUntilPrompt(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("qemu: monitor %s: %w", addr, err)
	}
	return s, nil
}

func (s *session) close() {
	s.conn.Close()
}

func (s *session) run(cmd string) error {
	s.conn.SetDeadline(time.Now().Add(s.timeout))
	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("qemu: %s: %w", cmd, err)
	}
	out, err := s.readUntilPrompt()
	if err != nil {
		return fmt.Errorf("qemu: %s: %w", cmd, err)
	}
	if msg := responseText(cmd, out); msg != "" {
		return fmt.Errorf("qemu: %s: %s", cmd, msg)
	}
	return nil
}

func (s *session) readUntilPrompt() (string, error) {
	s.conn.SetDeadline(time.Now().Add(s.timeout))
	var sb strings.Builder
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		sb.WriteByte(b)
		if strings.HasSuffix(sb.String(), prompt) {
			return strings.TrimSuffix(sb.String(), prompt), nil
		}
	}
}

// responseText strips the echoed command and terminal escapes. The human
// monitor prints nothing for a successful hotplug command, so anything left
// is an error message.
func responseText(cmd, out string) string {
	out = ansiEscape.ReplaceAllString(out, "")
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
		if line == "" || strings.Contains(line, cmd) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "; ")
}
