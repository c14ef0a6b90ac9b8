package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
)

// SignatureHeader carries the request signature when a secret is configured.
const SignatureHeader = "X-Signature"

// Sign is HMAC-SHA256 over the values of v concatenated in key order,
// hex-encoded. The platform recomputes it from the same fields.
func Sign(secret string, v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := make([]byte, 0, 128)
	for _, k := range keys {
		buf = append(buf, v.Get(k)...)
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(buf)
	return hex.EncodeToString(m.Sum(nil))
}

// signedFields are the request fields covered by the signature.
func signedFields(method, user string, body []byte) url.Values {
	v := url.Values{}
	v.Set("method", method)
	v.Set("user", user)
	if len(body) > 0 {
		v.Set("body", string(body))
	}
	return v
}
