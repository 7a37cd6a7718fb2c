// Package local accepts plaintext DNS from nearby clients over UDP and
// TCP and answers through a shared Forwarder. Both listeners hold the
// same Forwarder instance, so queries on either transport observe and
// populate one cache.
package local

import (
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/treemana/doh/log"
)

// Forwarder is the upstream side of a listener.
type Forwarder interface {
	Process(request *dns.Msg) (*dns.Msg, error)
}

// BindError reports a listener that could not take its local address.
// Fatal to startup.
type BindError struct {
	Network string
	Host    string
	Port    int
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s listen %s:%d error=[%+v]", e.Network, e.Host, e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func logQuestions(m *dns.Msg, remote net.Addr) {
	for _, q := range m.Question {
		log.Sugar.Infow("query",
			"phase", "request",
			"peer", remote.String(),
			"name", q.Name,
			"class", dns.ClassToString[q.Qclass],
			"type", dns.TypeToString[q.Qtype],
		)
	}
}

func logAnswers(m *dns.Msg) {
	for _, rr := range m.Answer {
		log.Sugar.Infow("answer", "phase", "response", "record", rr.String())
	}
}
