package hawk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// NormalizedString builds the newline terminated string covered by the MAC.
// The two trailing empty lines are the unused payload hash and ext fields.
func NormalizedString(a *Artifacts) string {
	var b strings.Builder
	for _, line := range []string{
		headerVersion,
		strconv.FormatInt(a.Timestamp, 10),
		a.Nonce,
		strings.ToUpper(a.Method),
		a.Resource,
		strings.ToLower(a.Host),
		strconv.Itoa(a.Port),
		"",
		"",
	} {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func rawMAC(key string, a *Artifacts) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(NormalizedString(a)))
	return h.Sum(nil)
}

// MAC returns the base64 HMAC-SHA256 of the normalized string keyed by key
func MAC(key string, a *Artifacts) string {
	return base64.StdEncoding.EncodeToString(rawMAC(key, a))
}

// FormatHeader renders the Authorization header value
func FormatHeader(id string, a *Artifacts, mac string) string {
	return fmt.Sprintf(`Hawk id="%s", ts="%d", nonce="%s", mac="%s", ext=""`, id, a.Timestamp, a.Nonce, mac)
}
