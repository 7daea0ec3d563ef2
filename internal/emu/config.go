package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace     bool // log a Gameboy-Doctor-format line for every instruction
	LimitFPS  bool // pace StepFrame to ~60 Hz; off for headless/test runs
	DoctorMode bool // pin LY at 0x90 for Gameboy Doctor trace comparison
}
