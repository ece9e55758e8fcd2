package scp

import "testing"

func TestResultString(t *testing.T) {
	cases := map[Result]string{
		RCOk:         "RC_OK",
		RCTimeout:    "RC_TIMEOUT",
		RCP2PTimeout: "RC_P2P_TIMEOUT",
		RCLen:        "RC_LEN",
		RCP2PNoReply: "RC_P2P_NOREPLY",
		Result(0xFFFF): "RC_UNKNOWN",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Result(%#x).String() = %q, want %q", uint16(code), got, want)
		}
	}
}

func TestDefaultRetrySet(t *testing.T) {
	set := DefaultRetrySet()
	for _, code := range []Result{RCTimeout, RCP2PTimeout, RCLen, RCP2PNoReply} {
		if !set[code] {
			t.Errorf("DefaultRetrySet() missing %s", code)
		}
	}
	if len(set) != 4 {
		t.Errorf("DefaultRetrySet() has %d entries, want 4", len(set))
	}
	if set[RCOk] {
		t.Error("DefaultRetrySet() should not include RC_OK")
	}
}

func TestVersionRetrySet(t *testing.T) {
	set := VersionRetrySet()
	for _, code := range []Result{RCP2PTimeout, RCTimeout, RCLen} {
		if !set[code] {
			t.Errorf("VersionRetrySet() missing %s", code)
		}
	}
	if len(set) != 3 {
		t.Errorf("VersionRetrySet() has %d entries, want 3", len(set))
	}
}
