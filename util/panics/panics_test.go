package panics

import (
	"testing"

	"github.com/blockkernel/blockkernel/infrastructure/logger"
)

func TestRecoverToError(t *testing.T) {
	log := logger.NewBackend().Logger("TEST")

	err := RecoverToError(log, "hook", func() {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected an error from a panicking function")
	}

	called := false
	err = RecoverToError(log, "hook", func() {
		called = true
	})
	if err != nil || !called {
		t.Fatalf("unexpected result: err=%v called=%t", err, called)
	}
}
