// Package upstream owns the single path from a decoded local request to
// a decoded response: consult the cache, forward misses to the
// configured DNS-over-HTTPS resolver, store what comes back.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/http2"

	"github.com/treemana/doh/bootstrap"
	"github.com/treemana/doh/cache"
	"github.com/treemana/doh/log"
)

const (
	contentType = "application/dns-message"

	timeout = 10 * time.Second
)

// ErrForward covers every per-request failure between packing a local
// request and unpacking the upstream response. Callers drop the request
// either way, so the cause only matters in the logs.
var ErrForward = errors.New("forwarding failed")

// Client forwards DNS messages to one DoH upstream. The zero value is
// unusable, build one with New. A single Client is shared by every
// listener goroutine; the http.Client pools connections safely and the
// cache does its own locking.
type Client struct {
	url   string
	hc    *http.Client
	cache *cache.Cache
}

// New builds the forwarder bound to host:port. A hostname upstream is
// resolved once through the bootstrap endpoint and every later dial of
// that hostname is pinned to the discovered address. The binding is
// never renewed; if the upstream moves, the proxy does not notice.
func New(host string, port int, cacheEnabled bool) (*Client, error) {
	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: true,
	}

	hostPort := net.JoinHostPort(host, strconv.Itoa(port))

	if net.ParseIP(host) == nil {
		bc, err := bootstrap.New()
		if err != nil {
			return nil, err
		}

		addr, err := bc.Resolve(host)
		if err != nil {
			return nil, err
		}
		log.Sugar.Infof("bootstrap %s as %s", host, addr.Addr())

		pinned := net.JoinHostPort(addr.Addr().String(), strconv.Itoa(port))
		dialer := &net.Dialer{Timeout: timeout}
		transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			if address == hostPort {
				address = pinned
			}
			return dialer.DialContext(ctx, network, address)
		}
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("upstream client build error=[%+v]", err)
	}

	c := &Client{
		url: fmt.Sprintf("https://%s/dns-query", hostPort),
		hc:  &http.Client{Transport: transport, Timeout: timeout},
	}

	if cacheEnabled {
		c.cache = cache.New()
	}

	log.Sugar.Infof("connected to https://%s", hostPort)

	return c, nil
}

// Process answers request from the cache when it can, otherwise does
// one POST round trip to the upstream and offers the decoded response
// back to the cache before returning it.
func (c *Client) Process(request *dns.Msg) (*dns.Msg, error) {
	if c.cache != nil {
		if response := c.cache.Get(request); response != nil {
			return response, nil
		}
	}

	raw, err := request.Pack()
	if err != nil {
		return nil, forwardError("pack", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return nil, forwardError("request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, forwardError("send", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, forwardError("read", err)
	}

	response := new(dns.Msg)
	if err = response.Unpack(body); err != nil {
		return nil, forwardError("unpack", err)
	}

	// a response without answers is a no-op inside the cache
	if c.cache != nil {
		c.cache.Put(response)
	}

	return response, nil
}

func forwardError(phase string, err error) error {
	return fmt.Errorf("%w, %s error=[%+v]", ErrForward, phase, err)
}
