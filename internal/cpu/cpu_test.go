package cpu

import (
	"testing"

	"github.com/nrholt/dmgcore/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b := bus.New(rom)
	c := New(b)
	return c
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 0x0101 {
		t.Fatalf("PC after NOP got %#04x want 0x0101", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	c.SetPC(0x0000)
	c.Step() // LD
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	c.Step() // XOR A
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if c.F&flagZ == 0 {
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	c.SetPC(0x0000)
	c.Step() // LD A,77
	c.Step() // LD (C000),A
	if a := c.Bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	c.Step() // LD A,00
	c.Step() // LD A,(C000)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xC3 // JP 0x0010
	rom[0x0001] = 0x10
	rom[0x0002] = 0x00
	rom[0x0010] = 0x18 // JR -2
	rom[0x0011] = 0xFE
	b := bus.New(rom)
	c := New(b)
	c.SetPC(0x0000)
	cycles := c.Step() // JP
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	c.Step() // JR -2
	if c.PC != pcBefore {
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04}) // INC B twice
	c.SetPC(0x0000)
	c.B = 0x0F
	c.F = flagC
	c.Step()
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if c.F&flagH == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&flagC == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	c.Step()
	if c.B != 0x00 || c.F&flagZ == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL, C000
		0x36, 0x5A, // LD (HL), 5A
		0x3E, 0x00, // LD A, 00
		0xF0, 0x00, // LD A, (FF00+0)
		0xE0, 0x01, // LD (FF00+1), A
	}
	c := newCPUWithROM(prog)
	c.SetPC(0x0000)
	c.Bus.Write(0xFF00, 0x30) // select neither, keep low nibble 0x0F
	c.Bus.Write(0xFF80, 0xA7)

	c.Step()
	c.Step()
	c.Step()
	c.Step()
	c.Step()
	if v := c.Bus.Read(0xC000); v != 0x5A {
		t.Fatalf("WRAM C000 got %02x want 5A", v)
	}
	if v := c.Bus.Read(0xFF01); v != c.A {
		t.Fatalf("LDH (FF00+1),A expected write to FF01 with A=%02x got %02x", c.A, v)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	rom[0x0005] = 0xC9 // RET
	b := bus.New(rom)
	c := New(b)
	c.SetPC(0x0000)
	c.Step() // CALL
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04x want 0005", c.PC)
	}
	retCycles := c.Step()
	if c.PC != 0x0003 || retCycles != 16 {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_CB_SetAndTestBit(t *testing.T) {
	// CB C7 = SET 0,A; CB 47 = BIT 0,A
	c := newCPUWithROM([]byte{0xCB, 0xC7, 0xCB, 0x47})
	c.SetPC(0x0000)
	c.A = 0x00
	c.Step() // SET 0,A
	if c.A != 0x01 {
		t.Fatalf("SET 0,A got %02x want 01", c.A)
	}
	c.Step() // BIT 0,A
	if c.F&flagZ != 0 {
		t.Fatalf("BIT 0,A should clear Z when bit is set")
	}
}

func TestCPU_HaltWakesOnPendingInterrupt(t *testing.T) {
	c := newCPUWithROM([]byte{0x76}) // HALT
	c.SetPC(0x0000)
	c.IME = false
	c.Step()
	if !c.Halted {
		t.Fatalf("CPU should be halted after HALT opcode")
	}
	c.Bus.Int.IE = 0x01
	c.Bus.Int.Request(0) // VBlank
	c.Step()
	if c.Halted {
		t.Fatalf("CPU should wake from HALT once an enabled interrupt is pending")
	}
}

func TestCPU_EIEnablesAfterFollowingInstruction(t *testing.T) {
	c := newCPUWithROM([]byte{0xFB, 0x00, 0x00}) // EI; NOP; NOP
	c.SetPC(0x0000)
	c.Step() // EI
	if c.IME {
		t.Fatalf("IME should not be enabled immediately after EI")
	}
	c.Step() // NOP following EI
	if !c.IME {
		t.Fatalf("IME should be enabled after the instruction following EI")
	}
}

func TestCPU_InterruptDispatch(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP at reset vector, irrelevant
	c.SetPC(0x0100)
	c.IME = true
	c.Bus.Int.IE = 0x01
	c.Bus.Int.Request(0) // VBlank
	c.Step()
	if c.PC != 0x40 {
		t.Fatalf("interrupt dispatch PC got %#04x want 0x0040", c.PC)
	}
	if c.IME {
		t.Fatalf("IME should be cleared after dispatch")
	}
}
