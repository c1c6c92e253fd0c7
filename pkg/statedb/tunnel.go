package statedb

import (
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/chassis/pkg/util"
)

// DefaultRedisAddr is the Redis address as seen from the switch.
const DefaultRedisAddr = "127.0.0.1:6379"

// TunnelConfig describes how to reach Redis on a remote switch.
type TunnelConfig struct {
	Host     string // host or host:port of the SSH server; port 22 when omitted
	User     string
	Password string

	// KnownHosts is an OpenSSH known_hosts file used to verify the host key.
	// When empty the host key is not checked.
	KnownHosts string

	// RemoteAddr is dialed from the SSH server. Defaults to DefaultRedisAddr.
	RemoteAddr string
}

// SSHTunnel forwards a local TCP port to a remote address through an SSH
// connection. Redis on the switch listens on loopback only.
type SSHTunnel struct {
	localAddr  string
	remoteAddr string
	sshClient  *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewSSHTunnel dials the SSH server and opens a local listener on a random
// port. Connections to the local port are forwarded to cfg.RemoteAddr.
func NewSSHTunnel(cfg TunnelConfig) (*SSHTunnel, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", cfg.KnownHosts, err)
		}
		hostKey = cb
	}
	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	remote := cfg.RemoteAddr
	if remote == "" {
		remote = DefaultRedisAddr
	}
	t := &SSHTunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remote,
		sshClient:  sshClient,
		listener:   listener,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	util.WithField("host", addr).Infof("SSH tunnel %s -> %s", t.localAddr, remote)
	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that forwards
// to the remote address.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *SSHTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	err := t.sshClient.Close()
	t.wg.Wait()
	return err
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.Warnf("SSH tunnel: dial %s: %v", t.remoteAddr, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	select {
	case <-done:
	case <-t.done:
	}
}
