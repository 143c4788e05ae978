package isa

import "testing"

// TestConditionTotality checks every ifun against every flag combination.
func TestConditionTotality(t *testing.T) {
	bools := []bool{false, true}
	for _, zf := range bools {
		for _, sf := range bools {
			for _, of := range bools {
				want := map[uint8]bool{
					CYes: true,
					CLE:  (sf != of) || zf,
					CL:   sf != of,
					CE:   zf,
					CNE:  !zf,
					CGE:  sf == of,
					CG:   (sf == of) && !zf,
				}
				for ifun := uint8(0); ifun <= CG; ifun++ {
					got := Condition(ifun, zf, sf, of)
					if got != want[ifun] {
						t.Errorf("Condition(%d, zf=%v sf=%v of=%v) = %v, want %v",
							ifun, zf, sf, of, got, want[ifun])
					}
				}
				// Unknown ifuns are false, not undefined.
				if Condition(7, zf, sf, of) {
					t.Error("Condition(7) should be false")
				}
			}
		}
	}
}

func TestInstrLength(t *testing.T) {
	tests := []struct {
		icode uint8
		want  int
	}{
		{IHalt, 1}, {INop, 1}, {IRet, 1},
		{IRRMovq, 2}, {IOpq, 2}, {IPushq, 2}, {IPopq, 2},
		{IJXX, 9}, {ICall, 9},
		{IIRMovq, 10}, {IRMMovq, 10}, {IMRMovq, 10},
	}
	for _, tc := range tests {
		if got := InstrLength(tc.icode); got != tc.want {
			t.Errorf("InstrLength(0x%x) = %d, want %d", tc.icode, got, tc.want)
		}
	}
}

func TestValidICode(t *testing.T) {
	for icode := uint8(0); icode <= IPopq; icode++ {
		if !ValidICode(icode) {
			t.Errorf("icode 0x%x should be valid", icode)
		}
	}
	for icode := uint8(0xC); icode <= 0xF; icode++ {
		if ValidICode(icode) {
			t.Errorf("icode 0x%x should be invalid", icode)
		}
	}
}

func TestRegisterByName(t *testing.T) {
	tests := []struct {
		name string
		code uint8
		ok   bool
	}{
		{"%rax", RAX, true},
		{"rax", RAX, true},
		{"%RSP", RSP, true},
		{"  %r14 ", R14, true},
		{"%rfoo", 0, false},
		{"", 0, false},
		{"none", 0, false},
	}
	for _, tc := range tests {
		code, ok := RegisterByName(tc.name)
		if ok != tc.ok || (ok && code != tc.code) {
			t.Errorf("RegisterByName(%q) = (%d, %v), want (%d, %v)",
				tc.name, code, ok, tc.code, tc.ok)
		}
	}
}

func TestStatusName(t *testing.T) {
	tests := []struct {
		stat uint8
		want string
	}{
		{StatAOK, "AOK"}, {StatHLT, "HLT"}, {StatADR, "ADR"}, {StatINS, "INS"},
		{0, "UNKNOWN"}, {99, "UNKNOWN"},
	}
	for _, tc := range tests {
		if got := StatusName(tc.stat); got != tc.want {
			t.Errorf("StatusName(%d) = %q, want %q", tc.stat, got, tc.want)
		}
	}
}
