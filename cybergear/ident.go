package cybergear

import "fmt"

// Mode is the 5-bit command class carried in identifier bits 24..28.
type Mode uint8

const (
	ModeDeviceID   Mode = 0
	ModeControl    Mode = 1
	ModeFeedback   Mode = 2
	ModeEnable     Mode = 3
	ModeDisable    Mode = 4
	ModeSetZero    Mode = 6
	ModeSetCANID   Mode = 7
	ModeParamRead  Mode = 17
	ModeParamWrite Mode = 18
	ModeFault      Mode = 21
)

var modeNames = map[Mode]string{
	ModeDeviceID:   "device-id",
	ModeControl:    "control",
	ModeFeedback:   "feedback",
	ModeEnable:     "enable",
	ModeDisable:    "disable",
	ModeSetZero:    "set-zero",
	ModeSetCANID:   "set-can-id",
	ModeParamRead:  "param-read",
	ModeParamWrite: "param-write",
	ModeFault:      "fault",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

const (
	targetMask = 0xFF
	fieldMask  = 0xFFFF
	modeMask   = 0x1F
)

// ComposeID packs mode, field and target into a 29-bit identifier. Every
// field is masked to its width; oversized values are truncated, not
// rejected, matching what the device accepts on the wire.
func ComposeID(mode Mode, field uint32, target uint8) uint32 {
	return uint32(target)&targetMask |
		(field&fieldMask)<<8 |
		(uint32(mode)&modeMask)<<24
}

// DecomposeID splits an identifier into its mode, field and target. Bits
// above 28 are ignored.
func DecomposeID(id uint32) (Mode, uint16, uint8) {
	return Mode((id >> 24) & modeMask), uint16((id >> 8) & fieldMask), uint8(id & targetMask)
}
