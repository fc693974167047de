package twofactor

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateSecret(t *testing.T) {
	engine := NewEngine()

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, key.Secret())
	require.Equal(t, "CoveCRM", key.Issuer())
	require.Contains(t, key.String(), "otpauth://totp/")

	// Two provisions never share a secret.
	other, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, key.Secret(), other.Secret())
}

func TestGenerateSecretRequiresAccount(t *testing.T) {
	engine := NewEngine()
	_, err := engine.GenerateSecret("   ")
	require.Error(t, err)
}

func TestVerifyAcceptsCurrentCode(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	engine := NewEngine(WithClock(fixedClock(now)))

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	code, err := engine.CurrentCode(key.Secret())
	require.NoError(t, err)
	require.Len(t, code, 6)

	require.True(t, engine.Verify(key.Secret(), code))
}

func TestVerifyAcceptsAdjacentSteps(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	engine := NewEngine(WithClock(fixedClock(now)))

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	previous, err := totp.GenerateCode(key.Secret(), now.Add(-30*time.Second))
	require.NoError(t, err)
	next, err := totp.GenerateCode(key.Secret(), now.Add(30*time.Second))
	require.NoError(t, err)

	require.True(t, engine.Verify(key.Secret(), previous))
	require.True(t, engine.Verify(key.Secret(), next))

	// Two steps out is rejected.
	stale, err := totp.GenerateCode(key.Secret(), now.Add(-90*time.Second))
	require.NoError(t, err)
	require.False(t, engine.Verify(key.Secret(), stale))
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	engine := NewEngine()

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	require.False(t, engine.Verify(key.Secret(), ""))
	require.False(t, engine.Verify(key.Secret(), "12345"))
	require.False(t, engine.Verify(key.Secret(), "0000000"))
	require.False(t, engine.Verify("", "123456"))
}

func TestCurrentCodeInvalidSecret(t *testing.T) {
	engine := NewEngine()
	_, err := engine.CurrentCode("not base32 !!!")
	require.ErrorIs(t, err, ErrInvalidSecret)
}

func TestCurrentCodeStableWithinStep(t *testing.T) {
	base := time.Date(2025, 3, 14, 15, 9, 0, 0, time.UTC)
	engine := NewEngine(WithClock(fixedClock(base)))

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	first, err := engine.CurrentCode(key.Secret())
	require.NoError(t, err)

	later := NewEngine(WithClock(fixedClock(base.Add(29 * time.Second))))
	second, err := later.CurrentCode(key.Secret())
	require.NoError(t, err)
	require.Equal(t, first, second)

	nextStep := NewEngine(WithClock(fixedClock(base.Add(30 * time.Second))))
	third, err := nextStep.CurrentCode(key.Secret())
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestProvisioningURI(t *testing.T) {
	engine := NewEngine(WithIssuer("Cove CRM"))

	uri := engine.ProvisioningURI("alice@example.com", "JBSWY3DPEHPK3PXP")
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/Cove%20CRM:alice@example.com?"))
	require.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	require.Contains(t, uri, "issuer=Cove%20CRM")
	require.Contains(t, uri, "period=30")
	require.Contains(t, uri, "digits=6")
}

func TestQRCodeSVG(t *testing.T) {
	engine := NewEngine()

	key, err := engine.GenerateSecret("alice@example.com")
	require.NoError(t, err)

	svg, err := engine.QRCodeSVG(key.String())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(svg, "<svg "))
	require.True(t, strings.HasSuffix(svg, "</svg>"))
	require.Contains(t, svg, `fill="#000000"`)

	png, err := engine.QRCodePNG(key.String())
	require.NoError(t, err)
	require.NotEmpty(t, png)
}
