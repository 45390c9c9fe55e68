package main

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/oniongraph/internal/tor"
)

func TestNewCheckCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCmd()
	if cmd.Use != "check" {
		t.Errorf("expected use 'check', got %q", cmd.Use)
	}
	for _, name := range []string{"control-address", "control-port", "cookie-file", "password-env", "dial-timeout", "config"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	// Measurement flags belong to scan only.
	for _, name := range []string{"guards", "middles", "format", "embedded-tor"} {
		if cmd.Flags().Lookup(name) != nil {
			t.Errorf("unexpected %s flag", name)
		}
	}
}

// serveControl accepts connections on a local port and answers each line
// with handle. It returns the listener address.
func serveControl(t *testing.T, handle func(line string) string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					resp := handle(scanner.Text())
					if resp == "" {
						return
					}
					if _, err := conn.Write([]byte(resp)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

// refusedAddress returns a local address nothing listens on.
func refusedAddress(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func nullAuthTor(line string) string {
	switch {
	case strings.HasPrefix(line, "PROTOCOLINFO"):
		return "250-PROTOCOLINFO 1\r\n250-AUTH METHODS=NULL\r\n250-VERSION Tor=\"0.4.8.12\"\r\n250 OK\r\n"
	case strings.HasPrefix(line, "AUTHENTICATE"):
		return "250 OK\r\n"
	default:
		return "510 Unrecognized command\r\n"
	}
}

func TestCheckControl(t *testing.T) {
	t.Parallel()

	const timeout = 2 * time.Second

	t.Run("authenticated control port", func(t *testing.T) {
		t.Parallel()

		addr := serveControl(t, nullAuthTor)
		var out bytes.Buffer
		cmd := NewCheckCmd()
		cmd.SetOut(&out)

		if err := checkControl(t.Context(), cmd, []string{addr}, tor.Credentials{}, timeout); err != nil {
			t.Fatalf("checkControl() error = %v", err)
		}
		if want := addr + ": OK"; !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output, got %q", want, out.String())
		}
	})

	t.Run("falls through to the next address", func(t *testing.T) {
		t.Parallel()

		refused := refusedAddress(t)
		addr := serveControl(t, nullAuthTor)
		var out bytes.Buffer
		cmd := NewCheckCmd()
		cmd.SetOut(&out)

		if err := checkControl(t.Context(), cmd, []string{refused, addr}, tor.Credentials{}, timeout); err != nil {
			t.Fatalf("checkControl() error = %v", err)
		}
		if !strings.Contains(out.String(), refused+": cannot connect") {
			t.Errorf("expected refused address in output, got %q", out.String())
		}
	})

	t.Run("cannot connect", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		cmd := NewCheckCmd()
		cmd.SetOut(&out)

		err := checkControl(t.Context(), cmd, []string{refusedAddress(t)}, tor.Credentials{}, timeout)
		if !errors.Is(err, tor.ErrCannotConnect) {
			t.Errorf("expected ErrCannotConnect, got %v", err)
		}
	})

	t.Run("not a control port", func(t *testing.T) {
		t.Parallel()

		addr := serveControl(t, func(string) string {
			return "HTTP/1.0 400 Bad Request\r\n\r\n"
		})
		var out bytes.Buffer
		cmd := NewCheckCmd()
		cmd.SetOut(&out)

		err := checkControl(t.Context(), cmd, []string{addr}, tor.Credentials{}, timeout)
		if !errors.Is(err, tor.ErrNotControlPort) {
			t.Errorf("expected ErrNotControlPort, got %v", err)
		}
	})

	t.Run("rejected password", func(t *testing.T) {
		t.Parallel()

		addr := serveControl(t, func(line string) string {
			switch {
			case strings.HasPrefix(line, "PROTOCOLINFO"):
				return "250-PROTOCOLINFO 1\r\n250-AUTH METHODS=HASHEDPASSWORD\r\n250 OK\r\n"
			case strings.HasPrefix(line, "AUTHENTICATE"):
				return "515 Authentication failed: Password did not match HashedControlPassword value from configuration\r\n"
			default:
				return ""
			}
		})
		var out bytes.Buffer
		cmd := NewCheckCmd()
		cmd.SetOut(&out)

		err := checkControl(t.Context(), cmd, []string{addr}, tor.Credentials{Password: "wrong"}, timeout)
		if !errors.Is(err, tor.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("no addresses", func(t *testing.T) {
		t.Parallel()

		err := checkControl(t.Context(), NewCheckCmd(), nil, tor.Credentials{}, timeout)
		if !errors.Is(err, tor.ErrInvalidControlAddress) {
			t.Errorf("expected ErrInvalidControlAddress, got %v", err)
		}
	})
}
