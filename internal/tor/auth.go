package tor

import (
	"context"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Authentication methods advertised in PROTOCOLINFO.
const (
	AuthMethodNull           = "NULL"
	AuthMethodHashedPassword = "HASHEDPASSWORD"
	AuthMethodCookie         = "COOKIE"
	AuthMethodSafeCookie     = "SAFECOOKIE"
)

// safeCookie HMAC keys from the control protocol.
const (
	safeCookieServerKey = "Tor safe cookie authentication server-to-controller hash"
	safeCookieClientKey = "Tor safe cookie authentication controller-to-server hash"
	safeCookieNonceSize = 32
	cookieSize          = 32
)

// Credentials are what the caller can offer to the control port.
// Empty fields are not tried.
type Credentials struct {
	// Password is the plain text control password (HashedControlPassword).
	Password string

	// CookieFile overrides the cookie path advertised by Tor.
	CookieFile string
}

// ProtocolInfo is the parsed PROTOCOLINFO reply.
type ProtocolInfo struct {
	// Methods are the authentication methods Tor accepts.
	Methods []string

	// CookieFile is where Tor wrote the authentication cookie.
	CookieFile string

	// TorVersion is the version of the Tor process.
	TorVersion string
}

// HasMethod reports whether Tor accepts method.
func (p ProtocolInfo) HasMethod(method string) bool {
	return slices.Contains(p.Methods, method)
}

// ProtocolInfo asks Tor which authentication methods it accepts.
// It is the only command allowed before authentication.
func (c *Conn) ProtocolInfo(ctx context.Context) (ProtocolInfo, error) {
	r, err := c.command(ctx, "PROTOCOLINFO 1")
	if err != nil {
		return ProtocolInfo{}, fmt.Errorf("PROTOCOLINFO failed: %w", err)
	}
	return parseProtocolInfo(r)
}

// parseProtocolInfo reads the AUTH and VERSION lines of a PROTOCOLINFO reply.
func parseProtocolInfo(r *reply) (ProtocolInfo, error) {
	var info ProtocolInfo
	seenHeader := false

	for _, line := range r.lines {
		keyword, rest, _ := strings.Cut(line.Text, " ")
		switch keyword {
		case "PROTOCOLINFO":
			seenHeader = true
		case "AUTH":
			kw, _ := keywordArgs(rest)
			if m := kw["METHODS"]; m != "" {
				info.Methods = strings.Split(m, ",")
			}
			info.CookieFile = kw["COOKIEFILE"]
		case "VERSION":
			kw, _ := keywordArgs(rest)
			info.TorVersion = kw["Tor"]
		}
	}

	if !seenHeader {
		return ProtocolInfo{}, fmt.Errorf("%w: missing PROTOCOLINFO line", ErrNotControlPort)
	}
	return info, nil
}

// Authenticate asks Tor for its accepted methods and logs in with creds.
func (c *Conn) Authenticate(ctx context.Context, creds Credentials) error {
	info, err := c.ProtocolInfo(ctx)
	if err != nil {
		return err
	}
	c.logger.Debug("control port protocol info",
		"methods", strings.Join(info.Methods, ","),
		"torVersion", info.TorVersion,
	)
	return c.AuthenticateWith(ctx, info, creds)
}

// AuthenticateWith logs in using an already fetched PROTOCOLINFO reply.
// Tor closes sessions that send PROTOCOLINFO twice before authenticating.
func (c *Conn) AuthenticateWith(ctx context.Context, info ProtocolInfo, creds Credentials) error {
	method, cookieFile, err := chooseAuthMethod(info, creds)
	if err != nil {
		return err
	}

	switch method {
	case AuthMethodNull:
		return c.authenticate(ctx, "AUTHENTICATE")
	case AuthMethodHashedPassword:
		return c.authenticate(ctx, "AUTHENTICATE "+quote(creds.Password))
	case AuthMethodCookie:
		return c.authenticateCookie(ctx, cookieFile)
	default:
		return c.authenticateSafeCookie(ctx, cookieFile)
	}
}

// chooseAuthMethod picks the first method both sides support, in the order
// NULL, HASHEDPASSWORD, COOKIE, SAFECOOKIE. cookieFile is the configured
// path, falling back to the one Tor advertised.
func chooseAuthMethod(info ProtocolInfo, creds Credentials) (method, cookieFile string, err error) {
	cookieFile = creds.CookieFile
	if cookieFile == "" {
		cookieFile = info.CookieFile
	}

	switch {
	case info.HasMethod(AuthMethodNull):
		return AuthMethodNull, "", nil
	case info.HasMethod(AuthMethodHashedPassword) && creds.Password != "":
		return AuthMethodHashedPassword, "", nil
	case info.HasMethod(AuthMethodCookie) && cookieFile != "":
		return AuthMethodCookie, cookieFile, nil
	case info.HasMethod(AuthMethodSafeCookie) && cookieFile != "":
		return AuthMethodSafeCookie, cookieFile, nil
	default:
		return "", "", fmt.Errorf("%w (offered: %s)", ErrNoAuthMethod, strings.Join(info.Methods, ","))
	}
}

// authenticate sends an AUTHENTICATE line and maps rejection to ErrAuthFailed.
func (c *Conn) authenticate(ctx context.Context, line string) error {
	if _, err := c.command(ctx, line); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return nil
}

// readCookie loads the 32 byte authentication cookie.
func readCookie(path string) ([]byte, error) {
	cookie, err := os.ReadFile(path) //nolint:gosec // path comes from Tor or the user
	if err != nil {
		return nil, fmt.Errorf("failed to read control cookie: %w", err)
	}
	if len(cookie) != cookieSize {
		return nil, fmt.Errorf("%w: cookie file is %d bytes, want %d", ErrAuthFailed, len(cookie), cookieSize)
	}
	return cookie, nil
}

// authenticateCookie sends the cookie itself.
func (c *Conn) authenticateCookie(ctx context.Context, path string) error {
	cookie, err := readCookie(path)
	if err != nil {
		return err
	}
	return c.authenticate(ctx, "AUTHENTICATE "+hex.EncodeToString(cookie))
}

// authenticateSafeCookie proves knowledge of the cookie with the
// AUTHCHALLENGE handshake, without sending the cookie.
func (c *Conn) authenticateSafeCookie(ctx context.Context, path string) error {
	cookie, err := readCookie(path)
	if err != nil {
		return err
	}

	clientNonce := make([]byte, safeCookieNonceSize)
	_, _ = crand.Read(clientNonce) //nolint:errcheck // crypto/rand.Read never fails

	r, err := c.command(ctx, "AUTHCHALLENGE SAFECOOKIE "+hex.EncodeToString(clientNonce))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	_, rest, _ := strings.Cut(r.text(), " ")
	kw, _ := keywordArgs(rest)
	serverHash, err := hex.DecodeString(kw["SERVERHASH"])
	if err != nil {
		return fmt.Errorf("%w: bad SERVERHASH", ErrMalformedReply)
	}
	serverNonce, err := hex.DecodeString(kw["SERVERNONCE"])
	if err != nil {
		return fmt.Errorf("%w: bad SERVERNONCE", ErrMalformedReply)
	}

	msg := slices.Concat(cookie, clientNonce, serverNonce)
	if !hmac.Equal(serverHash, safeCookieHash(safeCookieServerKey, msg)) {
		return fmt.Errorf("%w: server hash mismatch", ErrAuthFailed)
	}
	return c.authenticate(ctx, "AUTHENTICATE "+hex.EncodeToString(safeCookieHash(safeCookieClientKey, msg)))
}

// safeCookieHash is HMAC-SHA256 keyed with one of the fixed safe cookie keys.
func safeCookieHash(key string, msg []byte) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(msg)
	return mac.Sum(nil)
}
