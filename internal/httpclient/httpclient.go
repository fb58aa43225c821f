package httpclient

import (
	"net/http"
	"time"
)

// NewDefaultHTTPClient creates the client used for Storage Service, METS and
// PURL requests. Connections are pooled per host since a run talks to two
// hosts only.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
