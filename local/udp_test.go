package local

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestUDPRoundTrip(t *testing.T) {
	server, err := NewUDP("127.0.0.1", 0, &stubForwarder{})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer func() { _ = server.Close() }()
	go server.Listen()

	conn, err := net.Dial("udp", server.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	request := newTestQuery("example.org", 42)
	raw, err := request.Pack()
	if err != nil {
		t.Fatalf("pack error = %v", err)
	}
	if _, err = conn.Write(raw); err != nil {
		t.Fatalf("write error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, bufferSize)
	n, err := conn.Read(buffer)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}

	response := new(dns.Msg)
	if err = response.Unpack(buffer[:n]); err != nil {
		t.Fatalf("unpack error = %v", err)
	}
	if response.Id != 42 {
		t.Errorf("response id = %d, want 42", response.Id)
	}
	if len(response.Answer) != 1 {
		t.Errorf("response answer = %d, want 1", len(response.Answer))
	}
}

func TestUDPConcurrentIsolation(t *testing.T) {
	server, err := NewUDP("127.0.0.1", 0, &stubForwarder{})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer func() { _ = server.Close() }()
	go server.Listen()

	const clients = 32

	var wg sync.WaitGroup
	wg.Add(clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			defer wg.Done()

			name := fmt.Sprintf("host%d.example.org", i)
			id := uint16(1000 + i)

			conn, err := net.Dial("udp", server.Addr().String())
			if err != nil {
				t.Errorf("client %d dial error = %v", i, err)
				return
			}
			defer func() { _ = conn.Close() }()

			raw, err := newTestQuery(name, id).Pack()
			if err != nil {
				t.Errorf("client %d pack error = %v", i, err)
				return
			}
			if _, err = conn.Write(raw); err != nil {
				t.Errorf("client %d write error = %v", i, err)
				return
			}

			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			buffer := make([]byte, bufferSize)
			n, err := conn.Read(buffer)
			if err != nil {
				t.Errorf("client %d read error = %v", i, err)
				return
			}

			response := new(dns.Msg)
			if err = response.Unpack(buffer[:n]); err != nil {
				t.Errorf("client %d unpack error = %v", i, err)
				return
			}

			// no cross-talk: each reply carries its own id and name
			if response.Id != id {
				t.Errorf("client %d response id = %d, want %d", i, response.Id, id)
			}
			if len(response.Answer) != 1 || response.Answer[0].Header().Name != dns.Fqdn(name) {
				t.Errorf("client %d response answer mismatch: %v", i, response.Answer)
			}
		}(i)
	}
	wg.Wait()
}

func TestUDPDropOnFailure(t *testing.T) {
	server, err := NewUDP("127.0.0.1", 0, &stubForwarder{fail: true})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer func() { _ = server.Close() }()
	go server.Listen()

	conn, err := net.Dial("udp", server.Addr().String())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	raw, _ := newTestQuery("example.org", 7).Pack()
	if _, err = conn.Write(raw); err != nil {
		t.Fatalf("write error = %v", err)
	}

	// no error reply is ever sent, the client just times out
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buffer := make([]byte, bufferSize)
	if n, err := conn.Read(buffer); err == nil {
		t.Errorf("read %d bytes, want silence on forwarding failure", n)
	}
}

func TestNewUDPInvalidAddress(t *testing.T) {
	_, err := NewUDP("not an ip", 53, &stubForwarder{})
	if err == nil {
		t.Fatal("NewUDP() expected bind error")
	}

	var be *BindError
	if !errors.As(err, &be) {
		t.Fatalf("NewUDP() error = %T, want *BindError", err)
	}
	if be.Host != "not an ip" || be.Port != 53 {
		t.Errorf("BindError = %v, want host and port carried", be)
	}
}
