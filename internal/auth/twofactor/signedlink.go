package twofactor

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/covecrm/covecrm/pkg/crypto"
)

// DefaultLinkTTL is the validity window for signed disable links.
const DefaultLinkTTL = time.Hour

// ErrLinkInvalid covers tampered signatures and expired links alike; callers
// must not distinguish the two to the client.
var ErrLinkInvalid = errors.New("twofactor: invalid or expired link")

// LinkSigner issues and verifies HMAC-signed disable links. The signature
// covers the user id and the expiry timestamp, so neither can be altered
// without invalidating the link.
type LinkSigner struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// LinkSignerConfig bundles the LinkSigner construction parameters.
type LinkSignerConfig struct {
	Secret  string
	BaseURL string
	TTL     time.Duration
	Clock   func() time.Time
}

// NewLinkSigner constructs a LinkSigner.
func NewLinkSigner(cfg LinkSignerConfig) (*LinkSigner, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("twofactor: link signer secret is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &LinkSigner{
		secret:  []byte(cfg.Secret),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     ttl,
		now:     now,
	}, nil
}

// SignedLink is a disable link broken into its verifiable parts.
type SignedLink struct {
	UserID    string
	Expires   int64
	Signature string
	URL       string
}

// Sign produces a signed disable link for the given user.
func (s *LinkSigner) Sign(userID string) (SignedLink, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SignedLink{}, errors.New("twofactor: user id is required")
	}

	expires := s.now().Add(s.ttl).Unix()
	signature := crypto.SignHMAC(payload(userID, expires), s.secret)

	query := url.Values{}
	query.Set("user", userID)
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("signature", signature)

	return SignedLink{
		UserID:    userID,
		Expires:   expires,
		Signature: signature,
		URL:       s.baseURL + "/api/2fa/disable-confirm?" + query.Encode(),
	}, nil
}

// Verify checks the signature and expiry of a presented link.
func (s *LinkSigner) Verify(userID string, expires int64, signature string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || expires <= 0 || signature == "" {
		return ErrLinkInvalid
	}

	if !crypto.VerifyHMAC(payload(userID, expires), signature, s.secret) {
		return ErrLinkInvalid
	}

	if s.now().Unix() > expires {
		return ErrLinkInvalid
	}

	return nil
}

func payload(userID string, expires int64) string {
	return fmt.Sprintf("user=%s&expires=%d", userID, expires)
}
