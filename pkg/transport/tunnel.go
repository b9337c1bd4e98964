package transport

import (
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// sshTunnel forwards a local TCP port to a remote address through an
// SSH connection. Used to reach a Real connector's Redis endpoint when
// it has no route from outside the device's host.
type sshTunnel struct {
	localAddr  string
	remoteAddr string
	client     *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// dialSSHTunnel dials cfg against host and opens a local listener on a
// random port; connections to the local port are forwarded to
// remoteAddr through the SSH session.
func dialSSHTunnel(cfg *ssh.ClientConfig, host, remoteAddr string) (*sshTunnel, error) {
	client, err := ssh.Dial("tcp", host, cfg)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", host, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &sshTunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remoteAddr,
		client:     client,
		listener:   listener,
		done:       make(chan struct{}),
	}
	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that
// forwards to remoteAddr through the SSH host.
func (t *sshTunnel) LocalAddr() string { return t.localAddr }

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *sshTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	t.client.Close() // unblocks io.Copy goroutines waiting on remote reads
	t.wg.Wait()
	return nil
}

func (t *sshTunnel) acceptLoop() {
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

func (t *sshTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remoteAddr)
	if err != nil {
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
	<-done
}
