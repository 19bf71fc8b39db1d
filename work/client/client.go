package client

import (
	"net/http"
	"time"
)

// HeaderSettingClient wraps http.Client to automatically set headers on every
// outbound request (metadata lookups and stream probes).
type HeaderSettingClient struct {
	Client    *http.Client
	userAgent string
	referrer  string
}

// New builds a HeaderSettingClient with sane transport limits for short API
// and playlist fetches.
func New(userAgent, referrer string) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client:    client,
		userAgent: userAgent,
		referrer:  referrer,
	}
}

func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if hsc.userAgent != "" {
		req.Header.Set("User-Agent", hsc.userAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	if hsc.referrer != "" {
		req.Header.Set("Referer", hsc.referrer)
	}
}
