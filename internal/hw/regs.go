package hw

// Register map of the Allwinner A10/A20 CSI1 capture engine. Offsets and bit
// layouts are a hardware contract; they must match the data sheet exactly.
const (
	RegEnable        uint32 = 0x000
	RegConfig        uint32 = 0x004
	RegCapture       uint32 = 0x008
	RegScale         uint32 = 0x00C
	RegFIFO0BufferA  uint32 = 0x010
	RegFIFO0BufferB  uint32 = 0x014
	RegFIFO1BufferA  uint32 = 0x018
	RegFIFO1BufferB  uint32 = 0x01C
	RegFIFO2BufferA  uint32 = 0x020
	RegFIFO2BufferB  uint32 = 0x024
	RegBufferControl uint32 = 0x028
	RegBufferStatus  uint32 = 0x02C
	RegIntEnable     uint32 = 0x030
	RegIntStatus     uint32 = 0x034
	RegHSize         uint32 = 0x040
	RegVSize         uint32 = 0x044
	RegStride        uint32 = 0x048
)

const (
	// RegEnable bits.
	EnableModule uint32 = 0x01

	// RegConfig bits. The engine only supports 24bit planar YUV444 in and
	// field planar YUV444 out.
	ConfigInputYUV444       uint32 = 0x00400000
	ConfigInputMask         uint32 = 0x00700000
	ConfigOutputFieldPlanar uint32 = 0x000C0000
	ConfigOutputMask        uint32 = 0x000F0000
	ConfigVSyncPositive     uint32 = 0x04
	ConfigHSyncPositive     uint32 = 0x02
	ConfigPClkMask          uint32 = 0x01

	// RegCapture bits.
	CaptureVideo uint32 = 0x02

	// RegBufferControl bits: double buffering enabled, buffer A selected.
	BufferControlDouble uint32 = 0x01

	// RegIntEnable/RegIntStatus bits.
	IntFrameDone uint32 = 0x02

	// RegHSize/RegVSize/RegStride field masks. The high half holds the
	// pixel count, the low half the distance between sync and pixel data.
	SizeMaskLow  uint32 = 0x1FFF
	SizeMaskHigh uint32 = 0x1FFF0000
)

// ModuleClockHz is the fixed module clock rate the capture engine runs at.
const ModuleClockHz = 24000000

// fifoBufferRegs[slot][plane] holds the buffer-pointer register for a
// hardware slot (0 = A, 1 = B) and color plane.
var fifoBufferRegs = [2][3]uint32{
	{RegFIFO0BufferA, RegFIFO1BufferA, RegFIFO2BufferA},
	{RegFIFO0BufferB, RegFIFO1BufferB, RegFIFO2BufferB},
}

// PlaneBufferReg returns the buffer-pointer register for the given hardware
// slot (0 = A, 1 = B) and plane index (0-2).
func PlaneBufferReg(slot, plane int) uint32 {
	return fifoBufferRegs[slot][plane]
}
