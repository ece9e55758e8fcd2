package bmp

import "testing"

func TestBoardMask(t *testing.T) {
	mask, err := BoardMask([]int{0, 2, 5})
	if err != nil {
		t.Fatalf("BoardMask: %v", err)
	}
	want := uint32(1<<0 | 1<<2 | 1<<5)
	if mask != want {
		t.Errorf("mask = 0x%x, want 0x%x", mask, want)
	}
}

func TestBoardMask_OutOfRange(t *testing.T) {
	if _, err := BoardMask([]int{32}); err == nil {
		t.Error("expected error for board number out of range")
	}
}

func TestPowerArgs(t *testing.T) {
	arg1, arg2, err := PowerArgs(PowerOn, []int{0, 1}, 0.5)
	if err != nil {
		t.Fatalf("PowerArgs: %v", err)
	}
	if arg1&0xffff != uint32(PowerOn) {
		t.Errorf("low word of arg1 = %d, want PowerOn", arg1&0xffff)
	}
	if arg1>>16 != 500 {
		t.Errorf("delay word = %d, want 500ms", arg1>>16)
	}
	if arg2 != 0b11 {
		t.Errorf("arg2 = %b, want 0b11", arg2)
	}
}

func TestSetLEDArgs(t *testing.T) {
	arg1, arg2, err := SetLEDArgs([]int{0, 1}, LEDToggle, []int{3})
	if err != nil {
		t.Fatalf("SetLEDArgs: %v", err)
	}
	wantArg1 := uint32(LEDToggle)<<0 | uint32(LEDToggle)<<2
	if arg1 != wantArg1 {
		t.Errorf("arg1 = %d, want %d", arg1, wantArg1)
	}
	if arg2 != 1<<3 {
		t.Errorf("arg2 = %d, want %d", arg2, 1<<3)
	}
}

func TestWriteFPGARegisterArgs_RoundsAddress(t *testing.T) {
	arg1, arg2, arg3, data := WriteFPGARegisterArgs(1, 0x1003, 0xdeadbeef)
	if arg1 != 0x1000 {
		t.Errorf("arg1 = 0x%x, want 0x1000 (rounded down)", arg1)
	}
	if arg2 != 4 {
		t.Errorf("arg2 = %d, want 4", arg2)
	}
	if arg3 != 1 {
		t.Errorf("arg3 = %d, want fpga number 1", arg3)
	}
	if len(data) != 4 {
		t.Errorf("len(data) = %d, want 4", len(data))
	}
}

func TestDecodeADCRead(t *testing.T) {
	payload := make([]byte, 3*2+2*2+8*2)
	if _, err := DecodeADCRead(payload); err != nil {
		t.Errorf("DecodeADCRead: %v", err)
	}
}

func TestDecodeADCRead_TooShort(t *testing.T) {
	if _, err := DecodeADCRead(make([]byte, 4)); err == nil {
		t.Error("expected error for undersized ADC read payload")
	}
}
