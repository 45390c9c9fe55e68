package tor

import (
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
)

// eventCode is the status code of asynchronous events.
const eventCode = 650

// replyLine is one line of a control reply.
type replyLine struct {
	// Code is the three digit status code.
	Code int

	// Sep is '-' (mid line), '+' (data follows) or ' ' (end line).
	Sep byte

	// Text is everything after the separator.
	Text string

	// Data holds the dot-decoded data block of a '+' line.
	Data []string
}

// reply is a complete control reply: zero or more mid lines and one end line.
type reply struct {
	lines []replyLine
}

// code returns the status code of the end line.
func (r *reply) code() int {
	if len(r.lines) == 0 {
		return 0
	}
	return r.lines[len(r.lines)-1].Code
}

// ok reports whether the reply is a 2xx success.
func (r *reply) ok() bool {
	return r.code()/100 == 2
}

// text returns the text of the end line.
func (r *reply) text() string {
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1].Text
}

// err returns a ReplyError for a failed reply, nil otherwise.
func (r *reply) err() error {
	if r.ok() {
		return nil
	}
	return &ReplyError{Code: r.code(), Text: r.text()}
}

// readReply reads one reply from tp.
func readReply(tp *textproto.Reader) (*reply, error) {
	r := &reply{}
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) < 4 {
			return nil, fmt.Errorf("%w: short line %q", ErrMalformedReply, line)
		}

		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad status code %q", ErrMalformedReply, line[:3])
		}
		rl := replyLine{Code: code, Sep: line[3], Text: line[4:]}

		switch rl.Sep {
		case '-':
		case '+':
			data, err := tp.ReadDotLines()
			if err != nil {
				return nil, err
			}
			rl.Data = data
		case ' ':
			r.lines = append(r.lines, rl)
			return r, nil
		default:
			return nil, fmt.Errorf("%w: bad separator in %q", ErrMalformedReply, line)
		}
		r.lines = append(r.lines, rl)
	}
}

// keywordArgs parses space separated KEY=VALUE pairs. Values may be quoted
// strings. Tokens without '=' are returned in positional order.
func keywordArgs(s string) (map[string]string, []string) {
	kw := make(map[string]string)
	var positional []string

	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		key, rest, hasEq := cutToken(s)
		if !hasEq {
			positional = append(positional, key)
			s = rest
			continue
		}
		value, rest := parseValue(rest)
		kw[key] = value
		s = rest
	}
	return kw, positional
}

// cutToken splits off the next token. When the token is KEY=..., only the
// key is returned and rest starts at the value.
func cutToken(s string) (token, rest string, hasEq bool) {
	end := strings.IndexByte(s, ' ')
	if end < 0 {
		end = len(s)
	}
	if eq := strings.IndexByte(s[:end], '='); eq >= 0 {
		return s[:eq], s[eq+1:], true
	}
	return s[:end], s[end:], false
}

// parseValue reads a bare or quoted value from the start of s.
func parseValue(s string) (value, rest string) {
	if !strings.HasPrefix(s, `"`) {
		end := strings.IndexByte(s, ' ')
		if end < 0 {
			return s, ""
		}
		return s[:end], s[end:]
	}

	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), s[i+1:]
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), ""
}

// quote renders s as a control protocol quoted string.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
