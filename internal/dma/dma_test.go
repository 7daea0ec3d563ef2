package dma

import "testing"

type fakeMem struct {
	src [0x10000]byte
	oam [160]byte
}

func (m *fakeMem) ReadForDMA(addr uint16) byte         { return m.src[addr] }
func (m *fakeMem) WriteOAMByte(index uint8, v byte)    { m.oam[index] = v }

func TestDMAStartDelay(t *testing.T) {
	m := &fakeMem{}
	for i := range m.src {
		m.src[i] = byte(i)
	}
	m.src[0xC000] = 0xA5 // non-zero so an early or missing copy is visible
	var u Unit
	u.Start(0xC0)
	if !u.Active() {
		t.Fatalf("unit should be active immediately after Start")
	}
	u.Tick(m, m)
	u.Tick(m, m)
	if m.oam[0] != 0 {
		t.Fatalf("no byte should copy during the 2-cycle start delay, got oam[0]=%#x", m.oam[0])
	}
	u.Tick(m, m)
	if m.oam[0] != m.src[0xC000] {
		t.Fatalf("first byte should copy on the 3rd tick, got %#x want %#x", m.oam[0], m.src[0xC000])
	}
}

func TestDMAFullTransfer(t *testing.T) {
	m := &fakeMem{}
	for i := range m.src {
		m.src[i] = byte(i)
	}
	var u Unit
	u.Start(0xD0)
	for i := 0; i < 2+160; i++ {
		u.Tick(m, m)
	}
	if u.Active() {
		t.Fatalf("transfer should be complete after start delay + 160 ticks")
	}
	for i := 0; i < 160; i++ {
		want := m.src[0xD000+uint16(i)]
		if m.oam[i] != want {
			t.Fatalf("oam[%d]=%#x want %#x", i, m.oam[i], want)
		}
	}
}

func TestDMARestartMidFlight(t *testing.T) {
	m := &fakeMem{}
	var u Unit
	u.Start(0xC0)
	u.Tick(m, m)
	u.Tick(m, m)
	u.Tick(m, m) // one byte copied
	u.Start(0xD0)
	if !u.Active() || u.index != 0 {
		t.Fatalf("restarting should reset progress, index=%d active=%v", u.index, u.Active())
	}
}
