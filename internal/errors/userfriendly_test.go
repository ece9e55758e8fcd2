package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "connection failed",
				Reason:  "timeout",
				Hint:    "check network",
				Try:     "ping host",
				Err:     fmt.Errorf("dial udp: timeout"),
			},
			contains: []string{"connection failed", "Reason: timeout", "Hint: check network", "Try: ping host", "Details: dial udp: timeout"},
		},
		{
			name: "no reason",
			err: UserFriendlyError{
				Message: "failed",
				Hint:    "hint here",
			},
			contains: []string{"failed", "Hint: hint here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}

	var nilErr UserFriendlyError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil Err should return nil")
	}
}

func TestWrapNetworkError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapNetworkError(nil, "10.0.0.1", 17893) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("timeout error", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("dial udp: i/o timeout"), "10.0.0.1", 17893)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "10.0.0.1:17893") {
			t.Errorf("message should contain address, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "timeout") {
			t.Errorf("reason should mention timeout, got %q", ufe.Reason)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("connection refused"), "10.0.0.1", 17893)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "refused") {
			t.Errorf("reason should mention refused, got %q", ufe.Reason)
		}
	})

	t.Run("no route to host", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("no route to host"), "10.0.0.1", 17893)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "route") {
			t.Errorf("reason should mention route, got %q", ufe.Reason)
		}
	})

	t.Run("connection reset", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("connection reset by peer"), "10.0.0.1", 17893)
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "reset") {
			t.Errorf("reason should mention reset, got %q", ufe.Reason)
		}
	})

	t.Run("generic network error", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("something else"), "10.0.0.1", 17893)
		ufe := err.(UserFriendlyError)
		if ufe.Reason != "network communication failed" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapSCPError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapSCPError(nil, "read_memory") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("result code error", func(t *testing.T) {
		err := WrapSCPError(fmt.Errorf("result_code=0x0081"), "ReadMemory")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "ReadMemory") {
			t.Errorf("message should contain operation, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "result code") {
			t.Errorf("reason should mention result code, got %q", ufe.Reason)
		}
	})

	t.Run("malformed error", func(t *testing.T) {
		err := WrapSCPError(fmt.Errorf("malformed packet: short payload"), "read")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "malformed") {
			t.Errorf("reason should mention malformed, got %q", ufe.Reason)
		}
	})

	t.Run("timeout error", func(t *testing.T) {
		err := WrapSCPError(fmt.Errorf("timeout waiting for response"), "read")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "timeout") {
			t.Errorf("reason should mention timeout, got %q", ufe.Reason)
		}
	})

	t.Run("generic SCP error", func(t *testing.T) {
		err := WrapSCPError(fmt.Errorf("something"), "read")
		ufe := err.(UserFriendlyError)
		if ufe.Reason != "SCP protocol error occurred" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapConfigError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapConfigError(nil, "spinnman.yaml") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("wraps config error", func(t *testing.T) {
		err := WrapConfigError(fmt.Errorf("invalid yaml"), "spinnman.yaml")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "spinnman.yaml") {
			t.Errorf("message should contain config path, got %q", ufe.Message)
		}
		if ufe.Reason != "invalid yaml" {
			t.Errorf("reason should be inner error message, got %q", ufe.Reason)
		}
	})
}

func TestTaxonomyErrors(t *testing.T) {
	io := NewIo("ReadMemory", "(1,1,3)", []string{"RC_TIMEOUT", "RC_LEN"})
	if !strings.Contains(io.Error(), "ReadMemory") {
		t.Errorf("IoError.Error() = %q", io.Error())
	}

	to := NewTimeout("WriteMemory")
	if !strings.Contains(to.Error(), "WriteMemory") {
		t.Errorf("TimeoutError.Error() = %q", to.Error())
	}

	ur := &UnexpectedResponseError{Operation: "execute", Command: "ApplicationRun", ResultCode: 0x0081}
	if !strings.Contains(ur.Error(), "0x0081") {
		t.Errorf("UnexpectedResponseError.Error() = %q", ur.Error())
	}

	uo := &UnsupportedOperationError{MessageKind: "boot"}
	if !strings.Contains(uo.Error(), "boot") {
		t.Errorf("UnsupportedOperationError.Error() = %q", uo.Error())
	}

	ip := NewInvalidParameter("size", 512, "must be 1..256")
	if !strings.Contains(ip.Error(), "size") {
		t.Errorf("InvalidParameterError.Error() = %q", ip.Error())
	}

	mp := NewMalformedPacket("declared length mismatch")
	if !strings.Contains(mp.Error(), "declared length") {
		t.Errorf("MalformedPacketError.Error() = %q", mp.Error())
	}

	ors := &OutOfRoutingSpaceError{Chip: "(3,4)"}
	if !strings.Contains(ors.Error(), "(3,4)") {
		t.Errorf("OutOfRoutingSpaceError.Error() = %q", ors.Error())
	}

	inc := &IncompatibleError{Expected: "SC&MP", Observed: "BC&MP"}
	if !strings.Contains(inc.Error(), "BC&MP") {
		t.Errorf("IncompatibleError.Error() = %q", inc.Error())
	}

	cl := NewClosed("read_memory")
	if !strings.Contains(cl.Error(), "read_memory") {
		t.Errorf("ClosedError.Error() = %q", cl.Error())
	}

	agg := &AggregateError{FirstError: to, LaterCount: 3, Destination: "(0,0)", Command: "ReadMemory"}
	if !strings.Contains(agg.Error(), "3 more") {
		t.Errorf("AggregateError.Error() = %q", agg.Error())
	}
	if !errors.Is(agg, to) {
		t.Error("AggregateError should unwrap to FirstError")
	}
}
