// Package token generates the opaque tracking tokens binding one
// campaign/target pair across dispatch and tracking.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// Length is the fixed length of a generated token.
const Length = 32

// Generator derives deterministic, unguessable tracking tokens from a
// server-held secret. The same (campaign, target) pair always yields the
// same token, so a lost token can be regenerated without a lookup. The
// secret is process-wide configuration; rotating it invalidates every
// outstanding token for in-flight campaigns.
type Generator struct {
	secret []byte
}

// NewGenerator creates a token generator with the given secret.
func NewGenerator(secret string) Generator {
	return Generator{secret: []byte(secret)}
}

// Token returns the tracking token for a campaign/target pair: the URL-safe
// base64 encoding of HMAC-SHA256 over "c{campaign}t{target}", padding
// stripped, truncated to Length characters.
func (g Generator) Token(campaignID, targetID int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "c%dt%d", campaignID, targetID)
	tok := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	tok = strings.TrimRight(tok, "=")
	return tok[:Length]
}
