package transport

import (
	"errors"
	"strings"
	"testing"
)

func TestParseChallenge(t *testing.T) {
	header := `Digest realm="testrealm@host.com", qop="auth,auth-int", ` +
		`nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41"`

	ch, err := parseChallenge(header)
	if err != nil {
		t.Fatalf("parseChallenge() error = %v", err)
	}

	if ch.Realm != "testrealm@host.com" {
		t.Errorf("Realm = %q, want testrealm@host.com", ch.Realm)
	}
	if ch.Nonce != "dcd98b7102dd2f0e8b11d0f600bfb0c093" {
		t.Errorf("Nonce = %q", ch.Nonce)
	}
	if ch.Opaque != "5ccc069c403ebaf9f0171e9517f40e41" {
		t.Errorf("Opaque = %q", ch.Opaque)
	}
	if ch.Algorithm != "MD5" {
		t.Errorf("Algorithm = %q, want MD5 default", ch.Algorithm)
	}
	if ch.QOP != "auth" {
		t.Errorf("QOP = %q, want auth", ch.QOP)
	}
}

func TestParseChallengeSHA256(t *testing.T) {
	ch, err := parseChallenge(`Digest realm="r", nonce="n", algorithm=SHA-256, qop="auth"`)
	if err != nil {
		t.Fatalf("parseChallenge() error = %v", err)
	}
	if ch.Algorithm != "SHA-256" {
		t.Errorf("Algorithm = %q, want SHA-256", ch.Algorithm)
	}
}

func TestParseChallengeErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"not digest", `Basic realm="r"`},
		{"empty", ""},
		{"missing nonce", `Digest realm="r"`},
		{"missing realm", `Digest nonce="n"`},
		{"unsupported algorithm", `Digest realm="r", nonce="n", algorithm=MD5-sess`},
		{"unsupported qop", `Digest realm="r", nonce="n", qop="auth-int"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseChallenge(tt.header)
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("parseChallenge(%q) error = %v, want ErrProtocol", tt.header, err)
			}
		})
	}
}

// TestDigestResponseRFC2617 checks against the worked example in
// RFC 2617 section 3.5.
func TestDigestResponseRFC2617(t *testing.T) {
	ch := &challenge{
		Realm:     "testrealm@host.com",
		Nonce:     "dcd98b7102dd2f0e8b11d0f600bfb0c093",
		Opaque:    "5ccc069c403ebaf9f0171e9517f40e41",
		Algorithm: "MD5",
		QOP:       "auth",
	}

	header := digestResponse(ch, "Mufasa", "Circle Of Life", "GET", "/dir/index.html", "0a4f113b", 1)

	if !strings.Contains(header, `response="6629fae49393a05397450978507c4ef1"`) {
		t.Errorf("header missing expected response digest:\n%s", header)
	}
	for _, want := range []string{
		`username="Mufasa"`,
		`realm="testrealm@host.com"`,
		`nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093"`,
		`uri="/dir/index.html"`,
		`qop=auth`,
		`nc=00000001`,
		`cnonce="0a4f113b"`,
		`opaque="5ccc069c403ebaf9f0171e9517f40e41"`,
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %s:\n%s", want, header)
		}
	}
	if !strings.HasPrefix(header, "Digest ") {
		t.Errorf("header missing Digest prefix: %s", header)
	}
}

func TestDigestResponseNoQOP(t *testing.T) {
	ch := &challenge{Realm: "r", Nonce: "n", Algorithm: "MD5"}

	header := digestResponse(ch, "admin", "secret", "GET", "/", "ignored", 1)

	if strings.Contains(header, "qop=") || strings.Contains(header, "cnonce=") {
		t.Errorf("legacy response must omit qop and cnonce: %s", header)
	}
	if !strings.Contains(header, `response="`) {
		t.Errorf("header missing response: %s", header)
	}
}

func TestDigestResponseSHA256IncludesAlgorithm(t *testing.T) {
	ch := &challenge{Realm: "r", Nonce: "n", Algorithm: "SHA-256", QOP: "auth"}

	header := digestResponse(ch, "admin", "secret", "GET", "/", "abcdef01", 1)

	if !strings.Contains(header, "algorithm=SHA-256") {
		t.Errorf("header missing algorithm directive: %s", header)
	}
}

func TestSplitAuthFieldsQuotedCommas(t *testing.T) {
	fields := splitAuthFields(`realm="a,b", nonce="n"`)
	if len(fields) != 2 {
		t.Fatalf("splitAuthFields() = %d fields, want 2: %v", len(fields), fields)
	}
	if !strings.Contains(fields[0], "a,b") {
		t.Errorf("quoted comma split wrongly: %v", fields)
	}
}

func TestNewCnonce(t *testing.T) {
	a, b := newCnonce(), newCnonce()
	if len(a) != 16 {
		t.Errorf("cnonce length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("consecutive cnonces should differ")
	}
}
