package tor

import (
	"bufio"
	"errors"
	"net/textproto"
	"strings"
	"testing"
)

func newTestReader(s string) *textproto.Reader {
	return textproto.NewReader(bufio.NewReader(strings.NewReader(s)))
}

func TestReadReply(t *testing.T) {
	t.Parallel()

	t.Run("single line", func(t *testing.T) {
		t.Parallel()

		r, err := readReply(newTestReader("250 OK\r\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.code() != 250 || !r.ok() || r.text() != "OK" {
			t.Errorf("got code=%d text=%q", r.code(), r.text())
		}
	})

	t.Run("mid lines", func(t *testing.T) {
		t.Parallel()

		input := "250-PROTOCOLINFO 1\r\n" +
			"250-AUTH METHODS=COOKIE COOKIEFILE=\"/tmp/cookie\"\r\n" +
			"250-VERSION Tor=\"0.4.8.10\"\r\n" +
			"250 OK\r\n"
		r, err := readReply(newTestReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.lines) != 4 {
			t.Fatalf("len(lines) = %d, want 4", len(r.lines))
		}
		if r.lines[1].Sep != '-' || r.lines[1].Text != `AUTH METHODS=COOKIE COOKIEFILE="/tmp/cookie"` {
			t.Errorf("unexpected line: %+v", r.lines[1])
		}
	})

	t.Run("data block", func(t *testing.T) {
		t.Parallel()

		input := "250+ns/all=\r\n" +
			"r alpha AAECAwQFBgcICQoLDA0ODxAREhM x 2016-10-09 12:00:00 1.2.3.4 9001 0\r\n" +
			"s Fast Running\r\n" +
			"..leading dot\r\n" +
			".\r\n" +
			"250 OK\r\n"
		r, err := readReply(newTestReader(input))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(r.lines) != 2 {
			t.Fatalf("len(lines) = %d, want 2", len(r.lines))
		}
		data := r.lines[0].Data
		if len(data) != 3 {
			t.Fatalf("len(data) = %d, want 3: %q", len(data), data)
		}
		if data[2] != ".leading dot" {
			t.Errorf("dot-stuffing not removed: %q", data[2])
		}
	})

	t.Run("error reply", func(t *testing.T) {
		t.Parallel()

		r, err := readReply(newTestReader("552 Unknown circuit \"12\"\r\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ok() {
			t.Error("expected non-OK reply")
		}
		var replyErr *ReplyError
		if !errors.As(r.err(), &replyErr) {
			t.Fatalf("expected *ReplyError, got %v", r.err())
		}
		if replyErr.Code != 552 {
			t.Errorf("Code = %d, want 552", replyErr.Code)
		}
	})

	t.Run("event", func(t *testing.T) {
		t.Parallel()

		r, err := readReply(newTestReader("650 CIRC 5 BUILT $AAAA~alpha\r\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.code() != eventCode {
			t.Errorf("code = %d, want %d", r.code(), eventCode)
		}
	})

	t.Run("malformed lines", func(t *testing.T) {
		t.Parallel()

		for _, input := range []string{"25\r\n", "abc OK\r\n", "250*OK\r\n"} {
			if _, err := readReply(newTestReader(input)); !errors.Is(err, ErrMalformedReply) {
				t.Errorf("readReply(%q) = %v, want ErrMalformedReply", input, err)
			}
		}
	})
}

func TestKeywordArgs(t *testing.T) {
	t.Parallel()

	kw, positional := keywordArgs(`CIRC 5 FAILED $AAAA~alpha PURPOSE=CONTROLLER REASON=TIMEOUT NOTE="a \"quoted\" value"`)

	wantPositional := []string{"CIRC", "5", "FAILED", "$AAAA~alpha"}
	if strings.Join(positional, " ") != strings.Join(wantPositional, " ") {
		t.Errorf("positional = %q, want %q", positional, wantPositional)
	}
	if kw["PURPOSE"] != "CONTROLLER" {
		t.Errorf("PURPOSE = %q", kw["PURPOSE"])
	}
	if kw["REASON"] != "TIMEOUT" {
		t.Errorf("REASON = %q", kw["REASON"])
	}
	if kw["NOTE"] != `a "quoted" value` {
		t.Errorf("NOTE = %q", kw["NOTE"])
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"secret", `"secret"`},
		{`pa"ss`, `"pa\"ss"`},
		{`back\slash`, `"back\\slash"`},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
		// quote and parseValue must round trip.
		if got, _ := parseValue(quote(tt.in)); got != tt.in {
			t.Errorf("parseValue(quote(%q)) = %q", tt.in, got)
		}
	}
}

func TestParseProtocolInfo(t *testing.T) {
	t.Parallel()

	t.Run("full reply", func(t *testing.T) {
		t.Parallel()

		r := &reply{lines: []replyLine{
			{Code: 250, Sep: '-', Text: "PROTOCOLINFO 1"},
			{Code: 250, Sep: '-', Text: `AUTH METHODS=COOKIE,SAFECOOKIE COOKIEFILE="/var/run/tor/control.authcookie"`},
			{Code: 250, Sep: '-', Text: `VERSION Tor="0.4.8.10"`},
			{Code: 250, Sep: ' ', Text: "OK"},
		}}

		info, err := parseProtocolInfo(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !info.HasMethod(AuthMethodCookie) || !info.HasMethod(AuthMethodSafeCookie) {
			t.Errorf("Methods = %v", info.Methods)
		}
		if info.HasMethod(AuthMethodNull) {
			t.Error("unexpected NULL method")
		}
		if info.CookieFile != "/var/run/tor/control.authcookie" {
			t.Errorf("CookieFile = %q", info.CookieFile)
		}
		if info.TorVersion != "0.4.8.10" {
			t.Errorf("TorVersion = %q", info.TorVersion)
		}
	})

	t.Run("not a control port", func(t *testing.T) {
		t.Parallel()

		r := &reply{lines: []replyLine{{Code: 250, Sep: ' ', Text: "OK"}}}
		if _, err := parseProtocolInfo(r); !errors.Is(err, ErrNotControlPort) {
			t.Errorf("expected ErrNotControlPort, got %v", err)
		}
	})
}

func TestChooseAuthMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		methods    []string
		creds      Credentials
		advertised string
		wantMethod string
		wantCookie string
		wantErr    bool
	}{
		{"null wins", []string{"NULL", "COOKIE"}, Credentials{}, "/c", AuthMethodNull, "", false},
		{"password when given", []string{"HASHEDPASSWORD", "COOKIE"}, Credentials{Password: "pw"}, "/c", AuthMethodHashedPassword, "", false},
		{"cookie without password", []string{"HASHEDPASSWORD", "COOKIE"}, Credentials{}, "/c", AuthMethodCookie, "/c", false},
		{"configured cookie path wins", []string{"COOKIE"}, Credentials{CookieFile: "/mine"}, "/c", AuthMethodCookie, "/mine", false},
		{"safecookie only", []string{"SAFECOOKIE"}, Credentials{}, "/c", AuthMethodSafeCookie, "/c", false},
		{"password required but missing", []string{"HASHEDPASSWORD"}, Credentials{}, "", "", "", true},
		{"cookie without path", []string{"COOKIE"}, Credentials{}, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := ProtocolInfo{Methods: tt.methods, CookieFile: tt.advertised}
			method, cookie, err := chooseAuthMethod(info, tt.creds)
			if tt.wantErr {
				if !errors.Is(err, ErrNoAuthMethod) {
					t.Errorf("expected ErrNoAuthMethod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if method != tt.wantMethod || cookie != tt.wantCookie {
				t.Errorf("got (%q, %q), want (%q, %q)", method, cookie, tt.wantMethod, tt.wantCookie)
			}
		})
	}
}

func TestParseCircEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		want   circEvent
		wantOK bool
	}{
		{
			name:   "built",
			text:   "CIRC 12 BUILT $AAAA~alpha,$BBBB~bravo PURPOSE=CONTROLLER",
			want:   circEvent{ID: "12", Status: "BUILT"},
			wantOK: true,
		},
		{
			name:   "failed with reasons",
			text:   "CIRC 13 FAILED $AAAA~alpha PURPOSE=CONTROLLER REASON=DESTROYED REMOTE_REASON=CHANNEL_CLOSED",
			want:   circEvent{ID: "13", Status: "FAILED", Reason: "DESTROYED", RemoteReason: "CHANNEL_CLOSED"},
			wantOK: true,
		},
		{
			name:   "launched without path",
			text:   "CIRC 14 LAUNCHED PURPOSE=CONTROLLER",
			want:   circEvent{ID: "14", Status: "LAUNCHED"},
			wantOK: true,
		},
		{name: "other event", text: "STREAM 1 NEW 0 example.com:80"},
		{name: "too short", text: "CIRC 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseCircEvent(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseExtended(t *testing.T) {
	t.Parallel()

	id, err := parseExtended("EXTENDED 42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}

	for _, text := range []string{"OK", "EXTENDED", "EXTENDED 1 2"} {
		if _, err := parseExtended(text); !errors.Is(err, ErrMalformedReply) {
			t.Errorf("parseExtended(%q) = %v, want ErrMalformedReply", text, err)
		}
	}
}
