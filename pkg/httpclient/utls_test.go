package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Plain-http requests bypass the fingerprinted dialer and go through the
// default transport.
func TestUTLSRoundTripperPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plain")
	}))
	defer srv.Close()

	rt := newUTLSRoundTripper()
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "plain" {
		t.Errorf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestUTLSRoundTripperDialFailure(t *testing.T) {
	rt := newUTLSRoundTripper()
	req, err := http.NewRequest(http.MethodGet, "https://127.0.0.1:1/x", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected dial error")
	}
}
