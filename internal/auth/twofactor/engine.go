package twofactor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

const (
	defaultIssuer     = "CoveCRM"
	defaultQRCodeSize = 256

	// Period is the TOTP step length in seconds. Email backup codes are the
	// current code for this same step, so both channels share one engine.
	Period = 30

	// Digits is the length of generated one-time codes.
	Digits = 6
)

// ErrInvalidSecret signals that the stored secret cannot produce codes.
var ErrInvalidSecret = errors.New("twofactor: invalid secret")

// Option customises the Engine.
type Option func(*Engine)

// WithIssuer overrides the issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(issuer) != "" {
			e.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated PNG QR codes.
func WithQRCodeSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// Engine generates and verifies time-based one-time passwords. It is
// stateless; callers own secret storage.
type Engine struct {
	issuer     string
	qrCodeSize int
	now        func() time.Time
}

// NewEngine constructs a TOTP engine.
func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		issuer:     defaultIssuer,
		qrCodeSize: defaultQRCodeSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Issuer returns the issuer encoded into provisioning URIs.
func (e *Engine) Issuer() string {
	return e.issuer
}

// GenerateSecret provisions a new random secret for the given account. The
// returned key carries both the base32 secret and the otpauth:// URI.
func (e *Engine) GenerateSecret(accountName string) (*otp.Key, error) {
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return nil, errors.New("twofactor: account name is required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("twofactor: generate key: %w", err)
	}
	return key, nil
}

// CurrentCode returns the code valid for the current time step. Used by the
// email backup channel, which delivers the live code out of band.
func (e *Engine) CurrentCode(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", ErrInvalidSecret
	}

	code, err := totp.GenerateCodeCustom(secret, e.now(), totp.ValidateOpts{
		Period: Period,
		Digits: otp.DigitsSix,
	})
	if err != nil {
		return "", ErrInvalidSecret
	}
	return code, nil
}

// Verify checks a submitted code against the secret, accepting one step of
// clock drift in either direction.
func (e *Engine) Verify(secret, code string) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != Digits {
		return false
	}

	valid, err := totp.ValidateCustom(code, secret, e.now(), totp.ValidateOpts{
		Period: Period,
		Skew:   1,
		Digits: otp.DigitsSix,
	})
	if err != nil {
		return false
	}
	return valid
}

// ProvisioningURI builds the otpauth:// URI for an existing secret.
func (e *Engine) ProvisioningURI(accountName, secret string) string {
	v := make([]string, 0, 4)
	v = append(v, "secret="+secret)
	v = append(v, "issuer="+strings.ReplaceAll(e.issuer, " ", "%20"))
	v = append(v, fmt.Sprintf("period=%d", Period))
	v = append(v, fmt.Sprintf("digits=%d", Digits))

	label := strings.ReplaceAll(e.issuer, " ", "%20") + ":" + strings.ReplaceAll(accountName, " ", "%20")
	return "otpauth://totp/" + label + "?" + strings.Join(v, "&")
}

// QRCodePNG renders a provisioning URI as a PNG image.
func (e *Engine) QRCodePNG(uri string) ([]byte, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("twofactor: uri is required")
	}
	return qrcode.Encode(uri, qrcode.Medium, e.qrCodeSize)
}

// QRCodeSVG renders a provisioning URI as an inline-embeddable SVG document.
func (e *Engine) QRCodeSVG(uri string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", errors.New("twofactor: uri is required")
	}

	code, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("twofactor: encode qr: %w", err)
	}

	bitmap := code.Bitmap()
	size := len(bitmap)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`, size, size)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)
	for y, row := range bitmap {
		for x, filled := range row {
			if filled {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="1" height="1" fill="#000000"/>`, x, y)
			}
		}
	}
	b.WriteString(`</svg>`)
	return b.String(), nil
}
