package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/covecrm/covecrm/internal/handlers/testutil"
)

func TestTwoFactorHandler_Lifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("Lifecycle0!")
	token := env.Login(user.Email, "Lifecycle0!", "").Tokens.AccessToken

	// Fresh account: nothing enabled yet.
	status := env.Request(http.MethodGet, "/api/2fa/status", nil, token)
	require.Equal(t, http.StatusOK, status.Code)
	var statusData struct {
		Enabled       bool `json:"enabled"`
		PendingSecret bool `json:"pending_secret"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &statusData)
	require.False(t, statusData.Enabled)
	require.False(t, statusData.PendingSecret)

	// Provision a pending secret.
	generate := env.Request(http.MethodPost, "/api/2fa/generate", nil, token)
	require.Equal(t, http.StatusOK, generate.Code, generate.Body.String())
	var setup struct {
		Secret          string `json:"secret"`
		ProvisioningURI string `json:"provisioning_uri"`
		QRCodeSVG       string `json:"qr_code_svg"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, generate).Data, &setup)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, setup.QRCodeSVG, "<svg")

	status = env.Request(http.MethodGet, "/api/2fa/status", nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &statusData)
	require.False(t, statusData.Enabled)
	require.True(t, statusData.PendingSecret)

	// A wrong code must not activate the factor.
	bad := env.Request(http.MethodPost, "/api/2fa/enable", map[string]string{"otp": "000000"}, token)
	require.Equal(t, http.StatusUnauthorized, bad.Code)

	code, err := env.Engine.CurrentCode(setup.Secret)
	require.NoError(t, err)
	enable := env.Request(http.MethodPost, "/api/2fa/enable", map[string]string{"otp": code}, token)
	require.Equal(t, http.StatusOK, enable.Code, enable.Body.String())

	status = env.Request(http.MethodGet, "/api/2fa/status", nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &statusData)
	require.True(t, statusData.Enabled)
	require.False(t, statusData.PendingSecret)

	// Disabling requires a live code as well.
	code, err = env.Engine.CurrentCode(setup.Secret)
	require.NoError(t, err)
	disable := env.Request(http.MethodPost, "/api/2fa/disable", map[string]string{"otp": code}, token)
	require.Equal(t, http.StatusOK, disable.Code, disable.Body.String())

	status = env.Request(http.MethodGet, "/api/2fa/status", nil, token)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, status).Data, &statusData)
	require.False(t, statusData.Enabled)
}

func TestTwoFactorHandler_Enforce(t *testing.T) {
	env := testutil.NewEnv(t)

	staff := env.CreateUser("StaffPass0!")
	staffToken := env.Login(staff.Email, "StaffPass0!", "").Tokens.AccessToken

	forbidden := env.Request(http.MethodPost, "/api/2fa/enforce", map[string]bool{"enforced": true}, staffToken)
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	admin := env.CreateAdminUser("AdminPass0!")
	adminToken := env.Login(admin.Email, "AdminPass0!", "").Tokens.AccessToken

	// Enforcement without the admin's own factor would leave no fallback
	// secret, so the request is rejected.
	premature := env.Request(http.MethodPost, "/api/2fa/enforce", map[string]bool{"enforced": true}, adminToken)
	require.Equal(t, http.StatusBadRequest, premature.Code)

	secret := env.EnableTwoFactor(admin.ID)

	enforce := env.Request(http.MethodPost, "/api/2fa/enforce", map[string]bool{"enforced": true}, adminToken)
	require.Equal(t, http.StatusOK, enforce.Code, enforce.Body.String())

	// A user without a personal factor is now challenged on login and can
	// answer with the enforcing admin's code.
	challenge := env.Request(http.MethodPost, "/api/login", map[string]string{
		"email":    staff.Email,
		"password": "StaffPass0!",
	}, "")
	require.Equal(t, http.StatusOK, challenge.Code)
	var challengeData struct {
		RequiresTwoFactor bool `json:"requires_two_factor"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, challenge).Data, &challengeData)
	require.True(t, challengeData.RequiresTwoFactor)

	code, err := env.Engine.CurrentCode(secret)
	require.NoError(t, err)
	env.Login(staff.Email, "StaffPass0!", code)

	// Switching enforcement back off restores password-only logins.
	relax := env.Request(http.MethodPost, "/api/2fa/enforce", map[string]bool{"enforced": false}, adminToken)
	require.Equal(t, http.StatusOK, relax.Code)
	env.Login(staff.Email, "StaffPass0!", "")
}
