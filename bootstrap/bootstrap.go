// Package bootstrap resolves the upstream hostname to an address before
// the proxy can forward anything, which sidesteps the circular need for
// a working resolver to reach the resolver.
package bootstrap

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/http2"

	"github.com/treemana/doh/util"
)

const (
	// endpoint is a well known DoH resolver reachable by IP, so no
	// resolution is needed to reach it. Not configurable.
	endpoint = "https://1.1.1.1/dns-query"

	contentType = "application/dns-message"

	timeout = 10 * time.Second
)

// Error reports a failed bootstrap attempt. Every bootstrap failure is
// fatal to startup, there is no retry and no fallback endpoint.
type Error struct {
	Host   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap %s [%s]", e.Host, e.Detail)
}

type Client struct {
	hc *http.Client
}

func New() (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: true,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("bootstrap client build error=[%+v]", err)
	}

	return &Client{hc: &http.Client{Transport: transport, Timeout: timeout}}, nil
}

// Resolve asks the well known endpoint for the A record of host and
// returns the address of the first answer. One attempt only. The
// returned address carries port 0, the caller supplies the real port.
func (c *Client) Resolve(host string) (netip.AddrPort, error) {
	var none netip.AddrPort

	if _, ok := dns.IsDomainName(host); !ok {
		return none, &Error{Host: host, Detail: "invalid hostname"}
	}

	raw, err := util.DNSNewQuery(host, dns.TypeA).Pack()
	if err != nil {
		return none, &Error{Host: host, Detail: err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return none, &Error{Host: host, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return none, &Error{Host: host, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return none, &Error{Host: host, Detail: err.Error()}
	}

	var message dns.Msg
	if err = message.Unpack(body); err != nil {
		return none, &Error{Host: host, Detail: err.Error()}
	}

	if len(message.Answer) == 0 {
		return none, &Error{Host: host, Detail: "no answer"}
	}

	// only the first answer is consulted, no ranking among records
	ip := util.DNSAnswerIP(message.Answer[0])
	if ip == nil {
		return none, &Error{Host: host, Detail: "unknown record type"}
	}

	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return none, &Error{Host: host, Detail: "unknown record type"}
	}

	return netip.AddrPortFrom(addr.Unmap(), 0), nil
}
