package main

import (
	"fmt"
	"testing"

	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/cryconfig"
	"github.com/thezedwards/cryfs/internal/crydevice"
	"github.com/thezedwards/cryfs/internal/exitcodes"
)

func TestExitCodeForKnownErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{cryconfig.ErrConfigFileDoesntExist, exitcodes.ConfigFileDoesntExist},
		{cryconfig.ErrDecryptionFailed, exitcodes.DecryptionFailed},
		{cryconfig.ErrIncompatibleVersion, exitcodes.FilesystemIncompatibleVersion},
		{crydevice.ErrFilesystemInvalid, exitcodes.FilesystemInvalid},
		{blockstore.ErrIntegrity, exitcodes.IntegrityError},
		{blockstore.ErrNotFound, exitcodes.FilesystemInvalid},
		{errCipherNotImplemented, exitcodes.CipherNotImplemented},
	}
	for _, c := range cases {
		if got := exitCodeFor(c.err); got != c.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

// TestExitCodeForWrappedErrorUnwraps checks that a sentinel wrapped with
// fmt.Errorf("%w", ...) - the way runCreate wraps errCipherNotImplemented
// with the underlying cryconfig.Create error - still maps correctly,
// since exitCodeFor matches with errors.Is rather than ==.
func TestExitCodeForWrappedErrorUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("%w: %s", errCipherNotImplemented, "serpent-256-gcm")
	if got := exitCodeFor(wrapped); got != exitcodes.CipherNotImplemented {
		t.Errorf("exitCodeFor(wrapped) = %d, want CipherNotImplemented", got)
	}
}

func TestExitCodeForUnknownErrorIsIoError(t *testing.T) {
	if got := exitCodeFor(errUnrecognized); got != exitcodes.IoError {
		t.Errorf("exitCodeFor(unrecognized) = %d, want IoError", got)
	}
}

var errUnrecognized = &unrecognizedError{}

type unrecognizedError struct{}

func (*unrecognizedError) Error() string { return "unrecognized" }
