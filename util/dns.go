package util

import (
	"net"

	"github.com/miekg/dns"
)

// DNSNewQuery builds a single question request the way a stub resolver
// sends it: fresh transaction id, recursion desired.
func DNSNewQuery(name string, qType uint16) *dns.Msg {
	var m = new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qType)
	return m
}

// DNSAnswerIP return the address carried by an A or AAAA record
// or nil for every other record type.
func DNSAnswerIP(rr dns.RR) net.IP {
	switch rr := rr.(type) {
	case *dns.A:
		return rr.A
	case *dns.AAAA:
		return rr.AAAA
	default:
		return nil
	}
}
