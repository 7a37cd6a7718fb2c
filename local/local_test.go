package local

import (
	"errors"
	"net"
	"os"
	"testing"

	"github.com/miekg/dns"

	"github.com/treemana/doh/log"
)

func TestMain(m *testing.M) {
	if err := log.Init(log.Config{STDOUT: true}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// stubForwarder echoes an A record derived from the question so each
// reply is distinguishable per query.
type stubForwarder struct {
	fail bool
}

func (f *stubForwarder) Process(request *dns.Msg) (*dns.Msg, error) {
	if f.fail {
		return nil, errors.New("forwarding failed")
	}

	response := new(dns.Msg)
	response.SetReply(request)
	q := request.Question[0]
	response.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{
			Name:   q.Name,
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    300,
		},
		A: net.IPv4(192, 0, 2, 1),
	}}

	return response, nil
}

func newTestQuery(name string, id uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = id
	return m
}
