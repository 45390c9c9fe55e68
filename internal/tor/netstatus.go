package tor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nao1215/oniongraph/internal/relay"
)

// NetworkStatuses returns the router status entries of the consensus Tor is
// currently using (GETINFO ns/all).
func (c *Conn) NetworkStatuses(ctx context.Context) ([]relay.Status, error) {
	r, err := c.command(ctx, "GETINFO ns/all")
	if err != nil {
		return nil, fmt.Errorf("GETINFO ns/all failed: %w", err)
	}

	for _, line := range r.lines {
		if strings.HasPrefix(line.Text, "ns/all=") {
			return parseNetworkStatuses(line.Data)
		}
	}
	return nil, fmt.Errorf("%w: no ns/all data in reply", ErrMalformedReply)
}

// parseNetworkStatuses reads the "r" and "s" lines of router status
// entries. Other lines (a, w, p, m) are ignored.
func parseNetworkStatuses(lines []string) ([]relay.Status, error) {
	var statuses []relay.Status
	var current *relay.Status

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "r":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: short router line %q", ErrMalformedReply, line)
			}
			id, err := fingerprintFromIdentity(fields[2])
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, relay.Status{Nickname: fields[1], ID: id})
			current = &statuses[len(statuses)-1]
		case "s":
			if current == nil {
				return nil, fmt.Errorf("%w: flags line before router line", ErrMalformedReply)
			}
			current.Flags = append([]string(nil), fields[1:]...)
		}
	}
	return statuses, nil
}

// fingerprintFromIdentity converts the base64 identity digest of an "r" line
// into the upper-case hex fingerprint.
func fingerprintFromIdentity(identity string) (relay.ID, error) {
	digest, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(identity, "="))
	if err != nil {
		return "", fmt.Errorf("%w: bad identity %q: %w", ErrMalformedReply, identity, err)
	}
	return relay.ID(strings.ToUpper(hex.EncodeToString(digest))), nil
}
