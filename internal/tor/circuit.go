package tor

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao1215/oniongraph/internal/circuit"
	"github.com/nao1215/oniongraph/internal/relay"
)

// Circuit statuses reported in CIRC events.
const (
	circStatusLaunched = "LAUNCHED"
	circStatusBuilt    = "BUILT"
	circStatusExtended = "EXTENDED"
	circStatusFailed   = "FAILED"
	circStatusClosed   = "CLOSED"
)

// circEvent is one asynchronous "650 CIRC" event.
type circEvent struct {
	ID           circuit.ID
	Status       string
	Reason       string
	RemoteReason string
}

// parseCircEvent parses the text of a CIRC event line,
// "CIRC <id> <status> [<path>] [KEY=VALUE ...]".
func parseCircEvent(text string) (circEvent, bool) {
	kw, positional := keywordArgs(text)
	if len(positional) < 3 || positional[0] != "CIRC" {
		return circEvent{}, false
	}
	return circEvent{
		ID:           circuit.ID(positional[1]),
		Status:       positional[2],
		Reason:       kw["REASON"],
		RemoteReason: kw["REMOTE_REASON"],
	}, true
}

// dispatchEvent hands CIRC events to the active build, if any.
// Events arriving while nothing is being built are dropped.
func (c *Conn) dispatchEvent(r *reply) {
	if len(r.lines) == 0 {
		return
	}
	ev, ok := parseCircEvent(r.lines[0].Text)
	if !ok {
		return
	}

	c.sinkMu.Lock()
	sink := c.sink
	c.sinkMu.Unlock()
	if sink == nil {
		return
	}

	select {
	case sink <- ev:
	default:
		c.logger.Warn("circuit event queue full, dropping event")
	}
}

// setSink installs (or, with nil, removes) the channel receiving CIRC events.
func (c *Conn) setSink(sink chan circEvent) {
	c.sinkMu.Lock()
	c.sink = sink
	c.sinkMu.Unlock()
}

// subscribeCirc enables CIRC events once per session.
func (c *Conn) subscribeCirc(ctx context.Context) error {
	if c.subscribed {
		return nil
	}
	if _, err := c.command(ctx, "SETEVENTS CIRC"); err != nil {
		return fmt.Errorf("SETEVENTS CIRC failed: %w", err)
	}
	c.subscribed = true
	return nil
}

// BuildCircuit extends a new circuit through exactly path and waits until
// Tor reports it BUILT, FAILED or CLOSED.
//
// When Tor reports a failure it has already discarded the circuit, so no ID
// is returned. When the session's build timeout expires first, the ID is
// returned with ErrBuildTimeout so the caller can close the circuit.
func (c *Conn) BuildCircuit(ctx context.Context, path []relay.ID, purpose string) (circuit.ID, error) {
	if err := c.subscribeCirc(ctx); err != nil {
		return circuit.Invalid, err
	}

	// Install the sink before EXTENDCIRCUIT: events may precede the reply.
	sink := make(chan circEvent, circEventBuffer)
	c.setSink(sink)
	defer c.setSink(nil)

	fingerprints := make([]string, len(path))
	for i, id := range path {
		fingerprints[i] = id.String()
	}
	line := fmt.Sprintf("EXTENDCIRCUIT 0 %s", strings.Join(fingerprints, ","))
	if purpose != "" {
		line += " purpose=" + purpose
	}

	r, err := c.command(ctx, line)
	if err != nil {
		return circuit.Invalid, fmt.Errorf("EXTENDCIRCUIT failed: %w", err)
	}
	id, err := parseExtended(r.text())
	if err != nil {
		return circuit.Invalid, err
	}

	wctx := ctx
	if c.buildTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, c.buildTimeout)
		defer cancel()
	}

	for {
		select {
		case ev := <-sink:
			if ev.ID != id {
				continue
			}
			switch ev.Status {
			case circStatusBuilt:
				return id, nil
			case circStatusFailed, circStatusClosed:
				return circuit.Invalid, &CircuitError{
					Status:       ev.Status,
					Reason:       ev.Reason,
					RemoteReason: ev.RemoteReason,
				}
			case circStatusLaunched, circStatusExtended:
			}
		case <-c.done:
			return circuit.Invalid, c.closedErr()
		case <-wctx.Done():
			if ctx.Err() != nil {
				return id, ctx.Err()
			}
			return id, fmt.Errorf("%w after %s", ErrBuildTimeout, c.buildTimeout)
		}
	}
}

// parseExtended reads the circuit ID from "EXTENDED <id>".
func parseExtended(text string) (circuit.ID, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 || fields[0] != "EXTENDED" {
		return circuit.Invalid, fmt.Errorf("%w: unexpected EXTENDCIRCUIT reply %q", ErrMalformedReply, text)
	}
	return circuit.ID(fields[1]), nil
}

// CloseCircuit tears down the circuit with the given ID.
func (c *Conn) CloseCircuit(ctx context.Context, id circuit.ID) error {
	if id == circuit.Invalid {
		return nil
	}
	if _, err := c.command(ctx, "CLOSECIRCUIT "+string(id)); err != nil {
		return fmt.Errorf("CLOSECIRCUIT failed: %w", err)
	}
	return nil
}
