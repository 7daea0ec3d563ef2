// Package bus wires the CPU-visible 16-bit address space together:
// cartridge, VRAM, WRAM, OAM, HRAM, and the memory-mapped IO registers for
// the timer, interrupt controller, OAM DMA unit, and LCD register file.
// Per the redesigned ownership model, the Bus holds these subsystems as
// plain fields rather than the other way around; the CPU only ever talks
// to the Bus.
package bus

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/nrholt/dmgcore/internal/cart"
	"github.com/nrholt/dmgcore/internal/dma"
	"github.com/nrholt/dmgcore/internal/interrupt"
	"github.com/nrholt/dmgcore/internal/timer"
)

type Bus struct {
	cart cart.Cartridge

	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F
	wram [0x2000]byte // 0xC000-0xDFFF, echoed at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	LCD   LCD
	Timer timer.Timer
	Int   interrupt.Handler
	DMA   dma.Unit

	joypSelect byte
	joypad     byte
	joypLower4 byte

	sb byte
	sc byte
	sw io.Writer

	bootROM     []byte
	bootEnabled bool

	vramDirty bool

	debugTimer bool
}

// Joypad button bitmasks for SetJoypadState. Bits set mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// New constructs a Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

// Cart returns the underlying cartridge for optional battery operations.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// SetDoctorMode pins LY at 0x90 for Gameboy-Doctor-style trace comparison.
func (b *Bus) SetDoctorMode(on bool) { b.LCD.DoctorMode = on }

// VRAMDirty reports whether VRAM has been written since the last clear.
func (b *Bus) VRAMDirty() bool { return b.vramDirty }

// ClearVRAMDirty resets the dirty flag; a host render loop calls this once
// it has consumed the current VRAM contents.
func (b *Bus) ClearVRAMDirty() { b.vramDirty = false }

// VRAM exposes the raw tile/map bytes for a host-side debug viewer.
func (b *Bus) VRAM() *[0x2000]byte { return &b.vram }

// OAM exposes the raw sprite attribute bytes for a host-side debug viewer.
func (b *Bus) OAM() *[0xA0]byte { return &b.oam }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.vram[addr-0x8000]
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.DMA.Active() {
			return 0xFF
		}
		return b.oam[addr-0xFE00]
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.readJOYP()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.Timer.DIV()
	case addr == 0xFF05:
		return b.Timer.TIMA()
	case addr == 0xFF06:
		return b.Timer.TMA()
	case addr == 0xFF07:
		return b.Timer.TAC()
	case addr == 0xFF0F:
		return b.Int.ReadIF()
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.LCD.Read(addr)
	case addr == 0xFF46:
		return 0xFF // write-only in practice; last latched page not tracked
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFFFF:
		return b.Int.IE
	default:
		return 0
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.vram[addr-0x8000] = value
		b.vramDirty = true
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.DMA.Active() {
			return
		}
		b.oam[addr-0xFE00] = value
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.Int.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.Timer.WriteDIV()
		if b.debugTimer {
			fmt.Printf("[TMR] DIV write -> reset\n")
		}
	case addr == 0xFF05:
		b.Timer.WriteTIMA(value)
		if b.debugTimer {
			fmt.Printf("[TMR] TIMA write %02X\n", value)
		}
	case addr == 0xFF06:
		b.Timer.WriteTMA(value)
		if b.debugTimer {
			fmt.Printf("[TMR] TMA write %02X\n", value)
		}
	case addr == 0xFF07:
		b.Timer.WriteTAC(value)
		if b.debugTimer {
			fmt.Printf("[TMR] TAC write %02X\n", value)
		}
	case addr == 0xFF0F:
		b.Int.WriteIF(value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.LCD.Write(addr, value)
	case addr == 0xFF46:
		b.DMA.Start(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFFFF:
		b.Int.IE = value
	}
}

func (b *Bus) readJOYP() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// SetJoypadState sets which buttons are currently pressed; set bits mean
// pressed, using the Joyp* constants above.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

// SetSerialWriter sets a sink that receives bytes written via the serial
// port (SB/SC at 0xFF01/0xFF02).
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM mapped at 0x0000-0x00FF until a
// non-zero write to 0xFF50 disables it.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// ReadForDMA satisfies dma.Reader; DMA source reads bypass the OAM-access
// block a regular CPU read would hit.
func (b *Bus) ReadForDMA(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr <= 0x9FFF:
		return b.vram[addr-0x8000]
	case addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	default:
		return 0xFF
	}
}

// WriteOAMByte satisfies dma.Writer.
func (b *Bus) WriteOAMByte(index uint8, v byte) { b.oam[index] = v }

// Tick advances every bus-owned subsystem by the given number of T-cycles,
// one cycle at a time, so that timer overflow, OAM DMA, and LCD dot
// stepping all interleave exactly as a CPU's bus accesses would observe.
// The timer and LCD step on every T-cycle; OAM DMA steps on every fourth
// one, i.e. once per machine cycle.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		if b.Timer.Tick() {
			b.Int.Request(interrupt.Timer)
		}
		vblank, stat := b.LCD.Tick()
		if vblank {
			b.Int.Request(interrupt.VBlank)
		}
		if stat {
			b.Int.Request(interrupt.LCDStat)
		}
		if i%4 == 3 {
			b.DMA.Tick(b, b)
		}
	}
}

func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.Int.Request(interrupt.Joypad)
	}
	b.joypLower4 = newLower
}

// --- Save/Load state ---

type busState struct {
	VRAM [0x2000]byte
	OAM  [0xA0]byte
	WRAM [0x2000]byte
	HRAM [0x7F]byte

	IE, IF byte
	IME    bool

	LCDC, STAT, SCY, SCX, LY, LYC  byte
	BGP, OBP0, OBP1, WY, WX        byte

	TIMA, TMA, TAC byte

	JoypSel, Joypad, JoypL4 byte
	SB, SC                  byte
	BootEn                  bool
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		VRAM: b.vram, OAM: b.oam, WRAM: b.wram, HRAM: b.hram,
		IE: b.Int.IE, IF: b.Int.IF, IME: b.Int.IME,
		LCDC: b.LCD.LCDC, STAT: b.LCD.STAT, SCY: b.LCD.SCY, SCX: b.LCD.SCX,
		LY: b.LCD.ly, LYC: b.LCD.LYC,
		BGP: b.LCD.BGP, OBP0: b.LCD.OBP0, OBP1: b.LCD.OBP1, WY: b.LCD.WY, WX: b.LCD.WX,
		TIMA: b.Timer.TIMA(), TMA: b.Timer.TMA(), TAC: b.Timer.TAC(),
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		SB: b.sb, SC: b.sc,
		BootEn: b.bootEnabled,
	}
	_ = enc.Encode(s)
	if bb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		_ = enc.Encode(bb.SaveState())
	} else {
		_ = enc.Encode([]byte(nil))
	}
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.vram, b.oam, b.wram, b.hram = s.VRAM, s.OAM, s.WRAM, s.HRAM
	b.Int.IE, b.Int.IF, b.Int.IME = s.IE, s.IF, s.IME
	b.LCD.LCDC, b.LCD.STAT, b.LCD.SCY, b.LCD.SCX = s.LCDC, s.STAT, s.SCY, s.SCX
	b.LCD.ly, b.LCD.LYC = s.LY, s.LYC
	b.LCD.BGP, b.LCD.OBP0, b.LCD.OBP1, b.LCD.WY, b.LCD.WX = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	b.Timer.WriteTMA(s.TMA)
	b.Timer.WriteTAC(s.TAC)
	b.Timer.WriteTIMA(s.TIMA)
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.sb, b.sc = s.SB, s.SC
	b.bootEnabled = s.BootEn

	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		if bb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			bb.LoadState(cs)
		}
	}
}
