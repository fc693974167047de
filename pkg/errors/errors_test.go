package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrInvalidOTP
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestValidationStatusCode(t *testing.T) {
	err := NewValidation("otp must be 6 characters")
	if err.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", err.StatusCode)
	}
	if err.Message != "otp must be 6 characters" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
}

func TestCredentialErrorsDoNotLeakExistence(t *testing.T) {
	// The same error instance serves "no such user" and "wrong password".
	if ErrInvalidCredentials.Message != "Invalid email or password" {
		t.Fatalf("unexpected message: %s", ErrInvalidCredentials.Message)
	}
	if ErrInvalidCredentials.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", ErrInvalidCredentials.StatusCode)
	}
}
