package tor

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/tornago"
)

// CheckControl verifies that address is a Tor control port that accepts
// creds.
//
// PROTOCOLINFO tells us whether the peer is a control port at all. With
// cookie authentication the login is then verified through tornago's
// control client, an implementation independent of Conn; other methods are
// verified with Conn.Authenticate.
func CheckControl(ctx context.Context, address string, creds Credentials, timeout time.Duration) ControlStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := Dial(ctx, []string{address}, WithDialTimeout(timeout))
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return ControlStatusTimeout
		}
		return ControlStatusCannotConnect
	}
	defer conn.Close()

	info, err := conn.ProtocolInfo(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ControlStatusTimeout
		}
		return ControlStatusWrongType
	}

	method, cookieFile, err := chooseAuthMethod(info, creds)
	if err != nil {
		return ControlStatusAuthFailed
	}

	if method != AuthMethodCookie && method != AuthMethodSafeCookie {
		if err := conn.AuthenticateWith(ctx, info, creds); err != nil {
			return ControlStatusAuthFailed
		}
		return ControlStatusOK
	}

	// The tornago session replaces this one.
	_ = conn.Close() //nolint:errcheck // nothing left to do on this session
	if err := checkCookieWithTornago(address, cookieFile, timeout); err != nil {
		return ControlStatusAuthFailed
	}
	return ControlStatusOK
}

// checkCookieWithTornago authenticates once with tornago's control client.
func checkCookieWithTornago(address, cookieFile string, timeout time.Duration) error {
	client, err := tornago.NewControlClient(address, tornago.ControlAuthFromCookie(cookieFile), timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Authenticate()
}
