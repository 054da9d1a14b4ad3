package model

import "testing"

func TestTerminalStatuses(t *testing.T) {
	terminal := []AccountStatus{AccountStatusReady, AccountStatusDisconnected, AccountStatusError}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}

	for _, s := range []AccountStatus{AccountStatusConnecting, AccountStatusAuthenticated, ""} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestCanStartLinking(t *testing.T) {
	allowed := []AccountStatus{AccountStatusReady, AccountStatusDisconnected, ""}
	for _, s := range allowed {
		if !s.CanStartLinking() {
			t.Fatalf("%s should allow a fresh linking attempt", s)
		}
	}

	for _, s := range []AccountStatus{AccountStatusConnecting, AccountStatusAuthenticated, AccountStatusError} {
		if s.CanStartLinking() {
			t.Fatalf("%s should not allow a fresh linking attempt", s)
		}
	}
}
