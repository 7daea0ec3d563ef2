// Package emu assembles cart, bus, and cpu into a runnable Machine: the
// host-facing API that cmd/gbemu and cmd/cpurunner's sibling tools drive
// without reaching into bus/cpu internals.
package emu

import (
	"io"
	"os"
	"time"

	"github.com/nrholt/dmgcore/internal/bus"
	"github.com/nrholt/dmgcore/internal/cart"
	"github.com/nrholt/dmgcore/internal/cpu"
)

// cyclesPerFrame is CYCLES_IN_ONE_SIXTIETH_S: one 59.7Hz DMG frame.
const cyclesPerFrame = 70224

const (
	screenWidth  = 160
	screenHeight = 144
	tileSize     = 8
)

var frameDuration = time.Second / 60

// Buttons is the joypad state for one frame, translated to the bus's
// internal bitmask by SetButtons.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine owns one cartridge/bus/cpu triple and batches execution into
// 70224-cycle (one frame) steps.
type Machine struct {
	cfg Config

	Bus *bus.Bus
	CPU *cpu.CPU

	romPath   string
	bootROM   []byte
	fb        []byte // RGBA debug view, screenWidth x screenHeight
	lastFrame time.Time
}

// New constructs a Machine with an empty ROM-only cartridge; call
// LoadCartridge or LoadROMFromFile before stepping.
func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg, fb: make([]byte, screenWidth*screenHeight*4)}
	m.wire(bus.New(nil))
	return m
}

func (m *Machine) wire(b *bus.Bus) {
	m.Bus = b
	m.Bus.SetDoctorMode(m.cfg.DoctorMode)
	if len(m.bootROM) >= 0x100 {
		m.Bus.SetBootROM(m.bootROM)
	}
	m.CPU = cpu.New(b)
	if len(m.bootROM) >= 0x100 {
		m.CPU.SetPC(0x0000)
		m.CPU.SP = 0xFFFE
		m.CPU.IME = false
	}
}

// SetBootROM stores a DMG boot ROM image to overlay on the next (or
// current) cartridge load.
func (m *Machine) SetBootROM(boot []byte) {
	m.bootROM = boot
	if m.Bus != nil && len(boot) >= 0x100 {
		m.Bus.SetBootROM(boot)
	}
}

// LoadCartridge replaces the Machine's cartridge/bus/cpu with a fresh
// triple built from rom, optionally overlaying boot.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	if len(boot) >= 0x100 {
		m.bootROM = boot
	}
	m.wire(bus.NewWithCartridge(cart.NewCartridge(rom)))
	return nil
}

// LoadROMFromFile reads romPath and loads it as the current cartridge,
// recording the path for ROMPath() and default .sav placement.
func (m *Machine) LoadROMFromFile(romPath string) error {
	data, err := os.ReadFile(romPath)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = romPath
	return nil
}

// ROMPath returns the path most recently passed to LoadROMFromFile.
func (m *Machine) ROMPath() string { return m.romPath }

// SetSerialWriter forwards serial (link cable) output to w.
func (m *Machine) SetSerialWriter(w io.Writer) { m.Bus.SetSerialWriter(w) }

// SetButtons applies one frame's joypad state to the bus.
func (m *Machine) SetButtons(b Buttons) {
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.Bus.SetJoypadState(mask)
}

// SaveBattery returns the cartridge's battery-backed RAM, if any.
func (m *Machine) SaveBattery() ([]byte, bool) {
	bb, ok := m.Bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// LoadBattery restores previously saved battery RAM, if the cartridge
// supports it.
func (m *Machine) LoadBattery(data []byte) bool {
	bb, ok := m.Bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// runFrame executes exactly one 70224-cycle frame's worth of instructions,
// resetting the CPU's cumulative cycle counter afterward.
func (m *Machine) runFrame() {
	start := m.CPU.Cycles
	for m.CPU.Cycles-start < cyclesPerFrame {
		if m.cfg.Trace {
			m.CPU.DebugPrint(os.Stdout)
		}
		m.CPU.FetchAndExecute()
	}
	m.CPU.Cycles = 0
}

// StepFrame runs one frame, refreshes the debug framebuffer, and (if
// configured) paces itself to ~60 Hz.
func (m *Machine) StepFrame() {
	m.runFrame()
	m.renderDebugView()
	if m.cfg.LimitFPS {
		elapsed := time.Since(m.lastFrame)
		if elapsed < frameDuration {
			time.Sleep(frameDuration - elapsed)
		}
		m.lastFrame = time.Now()
	}
}

// StepFrameNoRender runs one frame without touching the framebuffer or
// pacing — used by the Blargg test harness, which only cares about serial
// output and wants to run as fast as possible.
func (m *Machine) StepFrameNoRender() {
	m.runFrame()
}

// Framebuffer returns the current RGBA debug view: a raw grayscale render
// of VRAM tile data, not a cycle-accurate scanout (the pixel-compositing
// PPU pipeline is out of scope; see the bus's LCD register file instead).
func (m *Machine) Framebuffer() []byte { return m.fb }

// renderDebugView tiles the first 360 of VRAM's 384 8x8 2bpp tiles across
// the framebuffer as grayscale, 20 columns by 18 rows (screenWidth/8 by
// screenHeight/8); the last 24 tiles are not shown.
func (m *Machine) renderDebugView() {
	vram := m.Bus.VRAM()
	cols := screenWidth / tileSize
	rows := screenHeight / tileSize
	for ty := 0; ty < rows; ty++ {
		for tx := 0; tx < cols; tx++ {
			tileIndex := ty*cols + tx
			base := tileIndex * 16
			for py := 0; py < tileSize; py++ {
				var lo, hi byte
				if base+py*2+1 < len(vram) {
					lo = vram[base+py*2]
					hi = vram[base+py*2+1]
				}
				for px := 0; px < tileSize; px++ {
					bit := 7 - px
					idx := ((hi>>bit)&1)<<1 | (lo>>bit)&1
					shade := byte(255 - int(idx)*85)
					x := tx*tileSize + px
					y := ty*tileSize + py
					off := (y*screenWidth + x) * 4
					m.fb[off+0] = shade
					m.fb[off+1] = shade
					m.fb[off+2] = shade
					m.fb[off+3] = 0xFF
				}
			}
		}
	}
}
