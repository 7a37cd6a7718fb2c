package local

import (
	"errors"
	"net"

	"github.com/miekg/dns"

	"github.com/treemana/doh/log"
)

// bufferSize bounds a single datagram read. One message per datagram.
const bufferSize = 4096

// UDPServer answers plaintext DNS datagrams, one goroutine per packet.
type UDPServer struct {
	conn      *net.UDPConn
	forwarder Forwarder
}

func NewUDP(host string, port int, forwarder Forwarder) (*UDPServer, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, &BindError{Network: "udp", Host: host, Port: port, Err: errors.New("invalid address")}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return nil, &BindError{Network: "udp", Host: host, Port: port, Err: err}
	}

	log.Sugar.Infof("listened on udp://%s:%d", host, port)

	return &UDPServer{conn: conn, forwarder: forwarder}, nil
}

// Listen reads datagrams until the socket closes. Every datagram gets
// its own goroutine, so a slow upstream round trip never holds up the
// next read.
func (s *UDPServer) Listen() {
	buffer := make([]byte, bufferSize)
	for {
		n, remote, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				log.Sugar.Warn("udp read connection closed")
				return
			}
			log.Sugar.Errorf("udp read error=[%+v]", err)
			continue
		}

		// ReadFromUDP overwrites buffer on the next call, the handler
		// goroutine needs its own copy
		packet := make([]byte, n)
		copy(packet, buffer)

		go s.handle(packet, remote)
	}
}

// handle runs the full receive to reply cycle for one datagram. Any
// failure drops the request without a reply, the client times out and
// retries exactly as it would on packet loss.
func (s *UDPServer) handle(packet []byte, remote *net.UDPAddr) {
	request := new(dns.Msg)
	if err := request.Unpack(packet); err != nil {
		log.Sugar.Warnf("udp %s unpack error=[%+v]", remote, err)
		return
	}

	logQuestions(request, remote)

	response, err := s.forwarder.Process(request)
	if err != nil {
		log.Sugar.Warnf("udp %s %+v", remote, err)
		return
	}

	logAnswers(response)

	raw, err := response.Pack()
	if err != nil {
		log.Sugar.Warnf("udp %s response pack error=[%+v]", remote, err)
		return
	}

	if _, err = s.conn.WriteToUDP(raw, remote); err != nil {
		log.Sugar.Warnf("udp %s write error=[%+v]", remote, err)
	}
}

// Addr reports the bound address, useful when the port was 0.
func (s *UDPServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close stops the read loop.
func (s *UDPServer) Close() error {
	return s.conn.Close()
}
