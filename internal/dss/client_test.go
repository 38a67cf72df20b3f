package dss

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
)

// newTestClient starts a TLS server running handler and returns a client
// pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	return NewClient(ClientConfig{
		Host:               host,
		Port:               port,
		User:               "dssadmin",
		Password:           "secret",
		InsecureSkipVerify: true,
	})
}

func TestClientLoginAndRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/system/login":
			if r.URL.Query().Get("user") != "dssadmin" || r.URL.Query().Get("password") != "secret" {
				fmt.Fprint(w, `{"ok":false,"message":"bad credentials"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"token":"tok-1"}}`)
		case "/json/apartment/getName":
			if r.URL.Query().Get("token") != "tok-1" {
				fmt.Fprint(w, `{"ok":false,"message":"not logged in"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"name":"Home"}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	if err := c.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	name, err := NewRawAPI(c).ApartmentName(ctx)
	if err != nil || name != "Home" {
		t.Errorf("ApartmentName() = %q, %v", name, err)
	}
}

func TestClientRelogsOnExpiredSession(t *testing.T) {
	var logins atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/system/login":
			n := logins.Add(1)
			fmt.Fprintf(w, `{"ok":true,"result":{"token":"tok-%d"}}`, n)
		case "/json/zone/getName":
			if r.URL.Query().Get("token") != "tok-2" {
				fmt.Fprint(w, `{"ok":false,"message":"not logged in"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"name":"Hall"}}`)
		}
	})
	ctx := context.Background()

	if err := c.Login(ctx); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	name, err := NewRawAPI(c).ZoneName(ctx, 4)
	if err != nil || name != "Hall" {
		t.Fatalf("ZoneName() = %q, %v", name, err)
	}
	if n := logins.Load(); n != 2 {
		t.Errorf("logins = %d, want 2", n)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"ok false", `{"ok":false,"message":"zone not found"}`, ErrProtocol},
		{"ok missing", `{"result":{}}`, ErrProtocol},
		{"not json", `<html>`, ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, tt.body)
			})
			_, err := c.Request(context.Background(), "zone/getName", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Request() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientLoginWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})
	if err := c.Login(context.Background()); !errors.Is(err, ErrProtocol) {
		t.Errorf("Login() error = %v, want ErrProtocol", err)
	}
}

func TestClientTransportFailure(t *testing.T) {
	c := NewClient(ClientConfig{Host: "127.0.0.1", Port: 1, InsecureSkipVerify: true})
	if _, err := c.Request(context.Background(), "apartment/getName", nil); !errors.Is(err, ErrTransport) {
		t.Errorf("Request() error = %v, want ErrTransport", err)
	}
}
