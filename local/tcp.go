package local

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/miekg/dns"

	"github.com/treemana/doh/log"
)

// TCPServer answers plaintext DNS over stream connections with the
// standard 2-byte big-endian length framing, one goroutine per
// accepted connection.
type TCPServer struct {
	listener  net.Listener
	forwarder Forwarder
}

func NewTCP(host string, port int, forwarder Forwarder) (*TCPServer, error) {
	if net.ParseIP(host) == nil {
		return nil, &BindError{Network: "tcp", Host: host, Port: port, Err: errors.New("invalid address")}
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Network: "tcp", Host: host, Port: port, Err: err}
	}

	log.Sugar.Infof("listened on tcp://%s:%d", host, port)

	return &TCPServer{listener: listener, forwarder: forwarder}, nil
}

// Listen accepts connections until the listener closes.
func (s *TCPServer) Listen() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Sugar.Warn("tcp accept connection closed")
				return
			}
			log.Sugar.Errorf("tcp accept error=[%+v]", err)
			continue
		}

		go s.serve(conn)
	}
}

// serve answers sequential length-prefixed messages on one connection
// until the peer closes, sends a zero length, or any read or write
// fails.
func (s *TCPServer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr()
	prefix := make([]byte, 2)
	for {
		if _, err := io.ReadFull(conn, prefix); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Sugar.Warnf("tcp %s read length error=[%+v]", remote, err)
			}
			return
		}

		length := binary.BigEndian.Uint16(prefix)
		if length == 0 {
			return
		}

		raw := make([]byte, length)
		if _, err := io.ReadFull(conn, raw); err != nil {
			log.Sugar.Warnf("tcp %s read body error=[%+v]", remote, err)
			return
		}

		request := new(dns.Msg)
		if err := request.Unpack(raw); err != nil {
			log.Sugar.Warnf("tcp %s unpack error=[%+v]", remote, err)
			return
		}

		logQuestions(request, remote)

		response, err := s.forwarder.Process(request)
		if err != nil {
			log.Sugar.Warnf("tcp %s %+v", remote, err)
			return
		}

		logAnswers(response)

		out, err := response.Pack()
		if err != nil {
			log.Sugar.Warnf("tcp %s response pack error=[%+v]", remote, err)
			return
		}

		// the prefix carries the response's own length, one write
		// keeps frame and body together on the wire
		framed := make([]byte, 2+len(out))
		binary.BigEndian.PutUint16(framed, uint16(len(out)))
		copy(framed[2:], out)

		if _, err = conn.Write(framed); err != nil {
			log.Sugar.Warnf("tcp %s write error=[%+v]", remote, err)
			return
		}
	}
}

// Addr reports the bound address, useful when the port was 0.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops the accept loop.
func (s *TCPServer) Close() error {
	return s.listener.Close()
}
