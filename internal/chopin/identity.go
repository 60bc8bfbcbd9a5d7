package chopin

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DevAddressCookie is the name of the cookie the proxy uses to remember a
// simulated logged-in identity across requests.
const DevAddressCookie = "dev-address"

// ForwardedAddressHeader is the header injected into every forwarded
// request once an identity has been resolved. The proxy is the sole
// source of truth for it: an incoming value from the client is always
// discarded, never passed through.
const ForwardedAddressHeader = "x-address"

// MintToken returns an unsigned (alg=none) JWT-shaped token whose payload
// is {sub: address}. The signature segment is empty.
//
// golang-jwt refuses to sign with SigningMethodNone unless the caller
// opts in with jwt.UnsafeAllowNoneSignatureType — a deliberate one-way
// door in the library, matching the intent that alg=none stays a
// dev-only escape hatch.
func MintToken(address string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": address})
	return token.SignedString(jwt.UnsafeAllowNoneSignatureType)
}

// ParseToken decodes an unsigned token minted by MintToken and returns its
// subject. Any algorithm other than "none" is rejected outright — chopd
// never accepts a "real" signed token on the dev identity path, so it
// can't be confused with production authentication.
func ParseToken(raw string) (address string, ok bool) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"none"}))
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return jwt.UnsafeAllowNoneSignatureType, nil
	})
	if err != nil {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return "", false
	}
	return sub, true
}

// RandomAddress generates a random Address for /_chopin/login when the
// caller didn't request one explicitly.
func RandomAddress() string {
	buf := make([]byte, 20)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}

// ResolveIdentity checks the dev-address cookie first, then a bearer
// token, silently falling back to "no identity" on any decode failure.
//
// The cookie is honored unconditionally whenever it's present: spec.md
// §4.1 step 1 sets x-address to the cookie's value, full stop, unlike the
// bearer-token path in step 2 which only takes effect on successful
// decode. A malformed dev-address cookie is still the proxy's answer, not
// a reason to fall through to the token or to "no identity".
func ResolveIdentity(r *http.Request) (address string, ok bool) {
	if c, err := r.Cookie(DevAddressCookie); err == nil {
		return c.Value, true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		if addr, ok := ParseToken(strings.TrimPrefix(auth, prefix)); ok && IsValidAddress(addr) {
			return addr, true
		}
	}
	return "", false
}

// InjectIdentity resolves r's identity and sets (or clears) the forwarded
// address header in place. The incoming x-address, if any, is always
// dropped first: the proxy never trusts a client-supplied value.
func InjectIdentity(r *http.Request) {
	r.Header.Del(ForwardedAddressHeader)
	if addr, ok := ResolveIdentity(r); ok {
		r.Header.Set(ForwardedAddressHeader, addr)
	}
}
