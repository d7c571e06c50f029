package transport

import (
	"crypto/md5"  //nolint:gosec // Digest auth mandates MD5 for legacy devices
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// challenge holds the fields of a WWW-Authenticate: Digest header.
type challenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Algorithm string // "MD5" (default) or "SHA-256"
	QOP       string // "auth" or empty; auth-int is not supported
}

// parseChallenge parses a WWW-Authenticate header value.
//
// Returns ErrProtocol when the header is not a digest challenge or is
// missing required fields.
func parseChallenge(header string) (*challenge, error) {
	const prefix = "Digest "
	if !strings.HasPrefix(strings.TrimSpace(header), prefix) {
		return nil, fmt.Errorf("%w: not a digest challenge: %q", ErrProtocol, header)
	}
	params := parseAuthParams(strings.TrimSpace(header)[len(prefix):])

	ch := &challenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Opaque:    params["opaque"],
		Algorithm: params["algorithm"],
	}
	if ch.Realm == "" || ch.Nonce == "" {
		return nil, fmt.Errorf("%w: challenge missing realm or nonce: %q", ErrProtocol, header)
	}
	if ch.Algorithm == "" {
		ch.Algorithm = "MD5"
	}

	// qop is a comma-separated list of offered protections; we speak
	// qop=auth. auth-int would require hashing the body.
	for _, qop := range strings.Split(params["qop"], ",") {
		if strings.TrimSpace(qop) == "auth" {
			ch.QOP = "auth"
			break
		}
	}
	if params["qop"] != "" && ch.QOP == "" {
		return nil, fmt.Errorf("%w: unsupported qop %q", ErrProtocol, params["qop"])
	}

	switch ch.Algorithm {
	case "MD5", "SHA-256":
	default:
		return nil, fmt.Errorf("%w: unsupported digest algorithm %q", ErrProtocol, ch.Algorithm)
	}

	return ch, nil
}

// parseAuthParams splits `k1="v1", k2=v2, ...` into a map. Values may
// be quoted or bare.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	for _, part := range splitAuthFields(s) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		params[key] = value
	}
	return params
}

// splitAuthFields splits on commas that are outside quoted strings.
func splitAuthFields(s string) []string {
	var fields []string
	var b strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == ',' && !inQuotes:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		fields = append(fields, b.String())
	}
	return fields
}

// digestResponse computes the Authorization header value answering a
// challenge.
//
// With qop=auth:
//
//	HA1 = H(username:realm:password)
//	HA2 = H(method:uri)
//	response = H(HA1:nonce:nc:cnonce:qop:HA2)
//
// Without qop (legacy RFC 2069 devices) the nc/cnonce/qop segment is
// omitted.
func digestResponse(ch *challenge, username, password, method, uri, cnonce string, nc int) string {
	h := hasherFor(ch.Algorithm)

	ha1 := h(fmt.Sprintf("%s:%s:%s", username, ch.Realm, password))
	ha2 := h(fmt.Sprintf("%s:%s", method, uri))

	ncValue := fmt.Sprintf("%08x", nc)

	var response string
	if ch.QOP == "auth" {
		response = h(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, ch.Nonce, ncValue, cnonce, ch.QOP, ha2))
	} else {
		response = h(fmt.Sprintf("%s:%s:%s", ha1, ch.Nonce, ha2))
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username=%q, realm=%q, nonce=%q, uri=%q`,
		username, ch.Realm, ch.Nonce, uri)
	if ch.QOP == "auth" {
		fmt.Fprintf(&b, `, qop=auth, nc=%s, cnonce=%q`, ncValue, cnonce)
	}
	fmt.Fprintf(&b, `, response=%q`, response)
	if ch.Opaque != "" {
		fmt.Fprintf(&b, `, opaque=%q`, ch.Opaque)
	}
	if ch.Algorithm != "MD5" {
		fmt.Fprintf(&b, `, algorithm=%s`, ch.Algorithm)
	}
	return b.String()
}

// hasherFor returns a hex-digest function for the challenge algorithm.
func hasherFor(algorithm string) func(string) string {
	var newHash func() hash.Hash
	switch algorithm {
	case "SHA-256":
		newHash = sha256.New
	default:
		newHash = md5.New
	}
	return func(s string) string {
		h := newHash()
		h.Write([]byte(s)) //nolint:errcheck // hash.Hash.Write never errors
		return hex.EncodeToString(h.Sum(nil))
	}
}

// newCnonce generates a random client nonce.
func newCnonce() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in a bad state;
		// a predictable cnonce only weakens replay protection.
		return "00000000deadbeef"
	}
	return hex.EncodeToString(buf)
}
