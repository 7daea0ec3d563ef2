package bus

// LCD holds the LCD control/status registers (LCDC, STAT, SCY, SCX, LY,
// LYC, BGP, OBP0, OBP1, WY, WX) and drives LY/STAT-mode timing against a
// per-scanline dot counter. It does not implement the tile/sprite pixel
// pipeline — VRAM and OAM live as plain byte arrays on the Bus, and pixel
// composition, if any, is the host's job.
type LCD struct {
	LCDC, STAT      byte
	SCY, SCX        byte
	ly              byte
	LYC             byte
	BGP, OBP0, OBP1 byte
	WY, WX          byte

	dot int // 0..455 within the current scanline

	// DoctorMode pins LY at 0x90, the value Gameboy Doctor trace
	// comparisons expect regardless of actual scanline position.
	DoctorMode bool
}

const (
	dotsPerLine     = 456
	linesPerFrame   = 154
	vblankStartLine = 144
	oamDots         = 80
	transferDots    = 172
)

func (l *LCD) mode() byte     { return l.STAT & 0x03 }
func (l *LCD) setMode(m byte) { l.STAT = (l.STAT &^ 0x03) | m }

// LY returns the current scanline as the CPU would read it at 0xFF44.
func (l *LCD) LY() byte {
	if l.DoctorMode {
		return 0x90
	}
	return l.ly
}

func (l *LCD) enabled() bool { return l.LCDC&0x80 != 0 }

// Tick advances the dot counter by one T-cycle and reports which
// interrupts (if any) should be requested this cycle.
func (l *LCD) Tick() (vblankIRQ, statIRQ bool) {
	if !l.enabled() {
		return false, false
	}
	l.dot++
	if l.dot >= dotsPerLine {
		l.dot = 0
		l.ly++
		if l.ly >= linesPerFrame {
			l.ly = 0
		}
		lycHit := l.ly == l.LYC
		if lycHit {
			l.STAT |= 0x04
		} else {
			l.STAT &^= 0x04
		}
		if l.ly >= vblankStartLine {
			if l.mode() != 1 {
				l.setMode(1)
				vblankIRQ = l.ly == vblankStartLine
				if l.STAT&0x10 != 0 {
					statIRQ = true
				}
			}
		} else {
			l.setMode(2)
			if l.STAT&0x20 != 0 {
				statIRQ = true
			}
		}
		if lycHit && l.STAT&0x40 != 0 {
			statIRQ = true
		}
		return vblankIRQ, statIRQ
	}
	if l.ly < vblankStartLine {
		switch l.dot {
		case oamDots:
			l.setMode(3)
		case oamDots + transferDots:
			l.setMode(0)
			if l.STAT&0x08 != 0 {
				statIRQ = true
			}
		}
	}
	return false, statIRQ
}

// Read serves the CPU-visible LCD register file; addr is the full bus
// address (0xFF40-0xFF4B).
func (l *LCD) Read(addr uint16) byte {
	switch addr {
	case 0xFF40:
		return l.LCDC
	case 0xFF41:
		return 0x80 | l.STAT
	case 0xFF42:
		return l.SCY
	case 0xFF43:
		return l.SCX
	case 0xFF44:
		return l.LY()
	case 0xFF45:
		return l.LYC
	case 0xFF47:
		return l.BGP
	case 0xFF48:
		return l.OBP0
	case 0xFF49:
		return l.OBP1
	case 0xFF4A:
		return l.WY
	case 0xFF4B:
		return l.WX
	default:
		return 0xFF
	}
}

func (l *LCD) Write(addr uint16, v byte) {
	switch addr {
	case 0xFF40:
		l.LCDC = v
		if !l.enabled() {
			l.dot = 0
			l.ly = 0
			l.setMode(0)
		}
	case 0xFF41:
		l.STAT = (l.STAT & 0x07) | (v &^ 0x07)
	case 0xFF42:
		l.SCY = v
	case 0xFF43:
		l.SCX = v
	case 0xFF44:
		// LY is read-only; writes are ignored.
	case 0xFF45:
		l.LYC = v
	case 0xFF47:
		l.BGP = v
	case 0xFF48:
		l.OBP0 = v
	case 0xFF49:
		l.OBP1 = v
	case 0xFF4A:
		l.WY = v
	case 0xFF4B:
		l.WX = v
	}
}
