package timer

import "testing"

func TestDIVIncrementsOnTick(t *testing.T) {
	var tm Timer
	for i := 0; i < 256; i++ {
		tm.Tick()
	}
	if tm.DIV() != 1 {
		t.Fatalf("DIV should read 1 after 256 ticks, got %d", tm.DIV())
	}
}

func TestTIMADisabledByDefault(t *testing.T) {
	var tm Timer
	for i := 0; i < 100000; i++ {
		tm.Tick()
	}
	if tm.TIMA() != 0 {
		t.Fatalf("TIMA should stay 0 while TAC enable bit is clear, got %d", tm.TIMA())
	}
}

func TestTIMAIncrementsAtSelectedRate(t *testing.T) {
	var tm Timer
	tm.WriteTAC(0x05) // enabled, select 01 -> bit 3, every 16 cycles
	for i := 0; i < 16; i++ {
		tm.Tick()
	}
	if tm.TIMA() != 1 {
		t.Fatalf("TIMA should increment once every 16 cycles at this rate, got %d", tm.TIMA())
	}
}

func TestTIMAOverflowReloadsAfterDelay(t *testing.T) {
	var tm Timer
	tm.WriteTAC(0x05) // bit 3, period 16
	tm.WriteTMA(0x42)
	tm.WriteTIMA(0xFF)
	// advance exactly to the next falling edge (16 cycles) to trigger overflow
	var interrupted bool
	for i := 0; i < 16; i++ {
		if tm.Tick() {
			interrupted = true
		}
	}
	if tm.TIMA() != 0 {
		t.Fatalf("TIMA should be 0 immediately after overflow, got %d", tm.TIMA())
	}
	if interrupted {
		t.Fatalf("interrupt should not fire on the overflow cycle itself")
	}
	for i := 0; i < reloadDelay-1; i++ {
		if tm.Tick() {
			t.Fatalf("interrupt should not fire before the reload delay elapses")
		}
	}
	if !tm.Tick() {
		t.Fatalf("interrupt should fire exactly reloadDelay cycles after overflow")
	}
	if tm.TIMA() != 0x42 {
		t.Fatalf("TIMA should reload from TMA, got %#x", tm.TIMA())
	}
}

func TestTIMAWriteDuringReloadCancelsIt(t *testing.T) {
	var tm Timer
	tm.WriteTAC(0x05)
	tm.WriteTMA(0x99)
	tm.WriteTIMA(0xFF)
	for i := 0; i < 16; i++ {
		tm.Tick()
	}
	tm.WriteTIMA(0x10) // cancel the pending reload
	for i := 0; i < reloadDelay+4; i++ {
		if tm.Tick() {
			t.Fatalf("canceled reload should never fire an interrupt")
		}
	}
	if tm.TIMA() < 0x10 {
		t.Fatalf("TIMA should resume counting from the written value, got %#x", tm.TIMA())
	}
}

func TestDIVWriteFallingEdgeIncrementsTIMA(t *testing.T) {
	var tm Timer
	tm.WriteTAC(0x04) // bit 9 selected, enabled
	for i := 0; i < 512; i++ {
		tm.Tick()
	}
	before := tm.TIMA()
	tm.WriteDIV()
	if tm.TIMA() != before+1 {
		t.Fatalf("DIV reset during a high selected bit should tick TIMA once, got %d want %d", tm.TIMA(), before+1)
	}
}
