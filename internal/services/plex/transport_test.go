package plex_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"anibridge-plex/internal/services/plex"
)

func TestTransportSkipsVerificationForConfiguredHost(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: plex.NewTransport(server.URL)}
	resp, err := client.Get(server.URL + "/identity")
	if err != nil {
		t.Fatalf("expected self-signed configured host to be reachable: %v", err)
	}
	resp.Body.Close()
}

func TestTransportVerifiesOtherHosts(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: plex.NewTransport("https://plex.example.com:32400")}
	resp, err := client.Get(server.URL + "/identity")
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected certificate verification failure for an unlisted host")
	}
}

func TestTransportPlainHTTPKeepsDefaults(t *testing.T) {
	if _, ok := plex.NewTransport("http://plex:32400").(*http.Transport); !ok {
		t.Fatal("expected plain transport for http base url")
	}
}
