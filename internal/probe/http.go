// Package probe runs HTTP health checks against monitored targets and
// classifies the outcome as online, degraded or offline.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/jandubois/healthmon/internal/registry"
)

const (
	// DefaultTimeout bounds a probe whose target has no timeout configured.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxBody is how much of a response body is drained before closing.
	DefaultMaxBody = 64 * 1024
)

// Prober performs one health check against one target.
// Implementations must never panic outward and never return an error:
// every fault is folded into the Result.
type Prober interface {
	Probe(ctx context.Context, target registry.Target) Result
}

// HTTPProber checks targets with a GET request.
type HTTPProber struct {
	client   *http.Client
	insecure *http.Client
	maxBody  int64
	now      func() time.Time
}

// NewHTTPProber creates a prober that drains at most maxBody bytes of each
// response. Redirects are followed with the default client policy.
func NewHTTPProber(maxBody int64) *HTTPProber {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	insecure := base.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per target

	return &HTTPProber{
		client:   &http.Client{Transport: base},
		insecure: &http.Client{Transport: insecure},
		maxBody:  maxBody,
		now:      time.Now,
	}
}

// Probe runs the health check. It always returns a Result.
func (p *HTTPProber) Probe(ctx context.Context, target registry.Target) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Offline(target.Name, FaultTransport, fmt.Sprintf("probe panic: %v", r), p.now())
		}
	}()

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL(), nil)
	if err != nil {
		return Offline(target.Name, FaultTransport, fmt.Sprintf("build request: %v", err), p.now())
	}
	req.Header.Set("User-Agent", "healthmon")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	client := p.client
	if target.InsecureSkipVerify {
		client = p.insecure
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		fault, message := Classify(err)
		return Offline(target.Name, fault, message, p.now())
	}
	// A body that stalls past the deadline is a timeout, not a response.
	_, err = io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBody))
	resp.Body.Close()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Offline(target.Name, FaultTimeout, ErrorTimeout, p.now())
		}
		fault, message := Classify(err)
		return Offline(target.Name, fault, message, p.now())
	}
	elapsed := time.Since(start)

	return Completed(target.Name, resp.StatusCode, target.Accepts(resp.StatusCode), elapsed, p.now())
}

// Classify maps a transport error to a fault tag and its description.
// Timeouts are checked first because a dial that times out is also a dial error.
func Classify(err error) (Fault, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout, ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FaultTimeout, ErrorTimeout
	}
	if isConnectionFailure(err) {
		return FaultConnection, ErrorConnectionFailure
	}

	// url.Error repeats the request URL, which may carry API keys in the query.
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return FaultTransport, urlErr.Err.Error()
	}
	return FaultTransport, err.Error()
}

func isConnectionFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var verifyErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var alertErr tls.AlertError
	var authorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}
