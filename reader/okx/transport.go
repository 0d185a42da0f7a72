package okx

import "net/http"

// userAgentTransport stamps every outgoing request with a stable User-Agent.
// The venue throttles anonymous default Go clients harder than identified
// ones.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return base.RoundTrip(req)
}
