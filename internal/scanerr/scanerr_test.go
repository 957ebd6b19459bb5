package scanerr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCodeOfUnwrapsNestedErrors(t *testing.T) {
	base := NewTimeout(30*time.Second, errors.New("deadline"))
	wrapped := fmt.Errorf("submission failed: %w", base)

	if CodeOf(wrapped) != CodeTimeout {
		t.Errorf("CodeOf(wrapped) = %s, want %s", CodeOf(wrapped), CodeTimeout)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain errors must carry no code")
	}
	if CodeOf(nil) != "" {
		t.Error("nil must carry no code")
	}
}

func TestIsCancelled(t *testing.T) {
	if !IsCancelled(NewCancelled(nil)) {
		t.Error("NewCancelled must report as cancelled")
	}
	if IsCancelled(NewTimeout(time.Second, nil)) {
		t.Error("a timeout is not a cancellation")
	}
	if IsCancelled(nil) {
		t.Error("nil is not a cancellation")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := NewNetworkFailed(errors.New("connection refused"))
	msg := err.Error()
	if msg != "NETWORK_FAILED: network request failed (caused by: connection refused)" {
		t.Errorf("unexpected error string: %s", msg)
	}

	bare := NewMenuNotRecognized("")
	if bare.Error() != "MENU_NOT_RECOGNIZED: menu not recognized" {
		t.Errorf("unexpected error string: %s", bare.Error())
	}
}

func TestToMapCarriesDetailsAndCause(t *testing.T) {
	err := NewServerFailed(502, errors.New("bad gateway"))
	m := err.ToMap()

	if m["error_code"] != "SERVER_FAILED" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["status"] != 502 {
		t.Errorf("status detail = %v", m["status"])
	}
	if m["cause"] != "bad gateway" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestUserMessageLocaleFallback(t *testing.T) {
	if UserMessage(CodeTimeout, "ko") == "" {
		t.Error("ko message missing for timeout")
	}
	if UserMessage(CodeTimeout, "fr") != UserMessage(CodeTimeout, "en") {
		t.Error("unknown locales must fall back to English")
	}
	// Unknown codes fall back to the generic server failure message.
	if UserMessage(Code("BOGUS"), "en") != UserMessage(CodeServerFailed, "en") {
		t.Error("unknown codes must use the generic message")
	}
}
