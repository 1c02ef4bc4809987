package hda

// Register map for the Intel HDA controller's memory-mapped BAR, transcribed
// bit-for-bit from the `regs`/`gcap`/`gctl`/... namespaces in
// original_source/src/spec.hpp. Offsets are byte offsets into the BAR;
// stream descriptor offsets are relative to a per-stream 0x20-byte subspace
// (see streamBase).

// Global register offsets.
const (
	regGCAP       = 0x00 // Global Capabilities, 16-bit
	regVMIN       = 0x02 // Minor Version, 8-bit
	regVMAJ       = 0x03 // Major Version, 8-bit
	regOUTPAY     = 0x04 // Output Payload Capability, 16-bit
	regINPAY      = 0x06 // Input Payload Capability, 16-bit
	regGCTL       = 0x08 // Global Control, 32-bit
	regWAKEEN     = 0x0C // Wake Enable, 16-bit
	regSTATESTS   = 0x0E // State Change Status, 16-bit
	regGSTS       = 0x10 // Global Status, 16-bit
	regOUTSTRMPAY = 0x18 // Output Stream Payload Capability, 16-bit
	regINSTRMPAY  = 0x1A // Input Stream Payload Capability, 16-bit
	regINTCTL     = 0x20 // Interrupt Control, 32-bit
	regINTSTS     = 0x24 // Interrupt Status, 32-bit
	regWALCLK     = 0x30 // Wall Clock Counter, 32-bit
	regSSYNC      = 0x38 // Stream Synchronization, 32-bit
	regCORBLBASE  = 0x40 // CORB Lower Base Address, 32-bit
	regCORBUBASE  = 0x44 // CORB Upper Base Address, 32-bit
	regCORBWP     = 0x48 // CORB Write Pointer, 16-bit
	regCORBRP     = 0x4A // CORB Read Pointer, 16-bit
	regCORBCTL    = 0x4C // CORB Control, 8-bit
	regCORBSTS    = 0x4D // CORB Status, 8-bit
	regCORBSIZE   = 0x4E // CORB Size, 8-bit
	regRIRBLBASE  = 0x50 // RIRB Lower Base Address, 32-bit
	regRIRBUBASE  = 0x54 // RIRB Upper Base Address, 32-bit
	regRIRBWP     = 0x58 // RIRB Write Pointer, 16-bit
	regRINTCNT    = 0x5A // Response Interrupt Count, 16-bit
	regRIRBCTL    = 0x5C // RIRB Control, 8-bit
	regRIRBSTS    = 0x5D // RIRB Status, 8-bit
	regRIRBSIZE   = 0x5E // RIRB Size, 8-bit
	regICOI       = 0x60 // Immediate Command Output Interface, 32-bit
	regICII       = 0x64 // Immediate Command Input Interface, 32-bit
	regICIS       = 0x68 // Immediate Command Status, 16-bit
	regDPLBASE    = 0x70 // DMA Position Lower Base Address, 32-bit
	regDPUBASE    = 0x74 // DMA Position Upper Base Address, 32-bit
)

// Per-stream descriptor register offsets, relative to streamBase(index).
const (
	sdCTL0  = 0x00 // byte 0 of Stream Control (RUN/RST live here)
	sdCTL1  = 0x01 // byte 1 of Stream Control
	sdCTL2  = 0x02 // byte 2 of Stream Control (STRM/DIR/TP/STRIPE)
	sdSTS   = 0x03 // Stream Status, 8-bit
	sdLPIB  = 0x04 // Link Position in Buffer, 32-bit
	sdCBL   = 0x08 // Cyclic Buffer Length, 32-bit
	sdLVI   = 0x0C // Last Valid Index, 16-bit
	sdFIFOS = 0x10 // FIFO Size, 16-bit
	sdFMT   = 0x12 // Stream Format, 16-bit
	sdBDPL  = 0x18 // BDL Pointer Lower Base Address, 32-bit
	sdBDPU  = 0x1C // BDL Pointer Upper Base Address, 32-bit
)

const streamDescriptorSize = 0x20

// streamBase returns the subspace base of the input or output stream
// descriptor at the given 0-based index, per original_source/src/controller.cpp
// (input streams are addressed first, starting at 0x80; output streams
// follow immediately after all input streams).
func streamBase(inStreamCount uint8, index int, output bool) uint32 {
	base := uint32(0x80)
	if output {
		base += uint32(inStreamCount) * streamDescriptorSize
	}
	return base + uint32(index)*streamDescriptorSize
}

// GCAP bitfields.
const (
	gcapOK64Pos  = 0
	gcapNSDOPos  = 1
	gcapNSDOMask = 0x3
	gcapBSSPos   = 3
	gcapBSSMask  = 0x1F
	gcapISSPos   = 8
	gcapISSMask  = 0xF
	gcapOSSPos   = 12
	gcapOSSMask  = 0xF
)

// GCTL bitfields.
const (
	gctlCRSTPos    = 0
	gctlFCNTRLPos  = 1
	gctlUNSOLPos   = 8
)

// INTCTL bitfields.
const (
	intctlSIEPos  = 0
	intctlSIEMask = 0x3FFFFFFF
	intctlCIEPos  = 30
	intctlGIEPos  = 31
)

// INTSTS bitfields.
const (
	intstsSISPos  = 0
	intstsSISMask = 0x3FFFFFFF
	intstsCISPos  = 30
	intstsGISPos  = 31
)

// CORBWP / CORBRP bitfields.
const (
	corbwpWPPos  = 0
	corbwpWPMask = 0xFF
	corbrpRPPos  = 0
	corbrpRPMask = 0xFF
	corbrpRSTPos = 15
)

// CORBCTL bitfields.
const (
	corbctlMEIEPos = 0
	corbctlRUNPos  = 1
)

// CORBSIZE / RIRBSIZE bitfields (shared layout).
const (
	ringSizeSIZEPos   = 0
	ringSizeSIZEMask  = 0x3
	ringSizeSZCAPPos  = 4
	ringSizeSZCAPMask = 0xF

	ringSize2Entries   = 0b00
	ringSize16Entries  = 0b01
	ringSize256Entries = 0b10

	ringSizeCap2   = 0b001
	ringSizeCap16  = 0b010
	ringSizeCap256 = 0b100
)

// RIRBWP bitfields.
const (
	rirbwpWPPos  = 0
	rirbwpWPMask = 0xFF
	rirbwpRSTPos = 15
)

// RIRBCTL bitfields.
const (
	rirbctlINTCTLPos = 0
	rirbctlDMAENPos  = 1
	rirbctlOICPos    = 2
)

// RIRBSTS bitfields.
const (
	rirbstsINTFLPos = 0
	rirbstsBOISPos  = 2
)

// DPLBASE bitfields.
const (
	dplbaseDPBEPos   = 0
	dplbaseBASEPos   = 7
	dplbaseBASEMask  = 0x1FFFFFF
)

// Per-stream SDnCTL bitfields (byte 0).
const (
	sdctl0RSTPos  = 0
	sdctl0RUNPos  = 1
	sdctl0IOCEPos = 2
	sdctl0FEIEPos = 3
	sdctl0DEIEPos = 4
)

// Per-stream SDnCTL bitfields (byte 2).
const (
	sdctl2STRIPEPos  = 0
	sdctl2STRIPEMask = 0x3
	sdctl2TPPos      = 2
	sdctl2DIRPos     = 3
	sdctl2STRMPos    = 4
	sdctl2STRMMask   = 0xF
)

// Per-stream SDnLVI bitfield.
const (
	sdlviLVIPos  = 0
	sdlviLVIMask = 0xFF
)

// Per-stream SDnSTS bitfields.
const (
	sdstsBCISPos    = 2
	sdstsFIFOEPos   = 3
	sdstsDESEPos    = 4
	sdstsFIFORDYPos = 5
)

// Per-stream SDnFMT bitfields.
const (
	sdfmtCHANPos  = 0
	sdfmtCHANMask = 0xF
	sdfmtBITSPos  = 4
	sdfmtBITSMask = 0x7
	sdfmtDIVPos   = 8
	sdfmtDIVMask  = 0x7
	sdfmtMULTPos  = 11
	sdfmtMULTMask = 0x7
	sdfmtBASEPos  = 14

	sdfmtBase48kHz  = 0
	sdfmtBase441kHz = 1

	sdfmtBits8   = 0b000
	sdfmtBits16  = 0b001
	sdfmtBits20  = 0b010
	sdfmtBits24  = 0b011
	sdfmtBits32  = 0b100
)

// offsetSpace is an MMIOSpace view rebased at a fixed offset into a parent
// space, used to address a single stream descriptor's 0x20-byte subspace
// without re-deriving its base on every access. Mirrors the
// base-plus-offset MemSpace::subspace idiom in
// original_source/src/reg.hpp, expressed here against the KernelServices-
// backed MMIOSpace interface rather than a raw pointer.
type offsetSpace struct {
	parent MMIOSpace
	base   uint32
}

func subspace(parent MMIOSpace, base uint32) MMIOSpace {
	return &offsetSpace{parent: parent, base: base}
}

func (s *offsetSpace) Read8(off uint32) uint8    { return s.parent.Read8(s.base + off) }
func (s *offsetSpace) Write8(off uint32, v uint8) { s.parent.Write8(s.base+off, v) }
func (s *offsetSpace) Read16(off uint32) uint16    { return s.parent.Read16(s.base + off) }
func (s *offsetSpace) Write16(off uint32, v uint16) { s.parent.Write16(s.base+off, v) }
func (s *offsetSpace) Read32(off uint32) uint32    { return s.parent.Read32(s.base + off) }
func (s *offsetSpace) Write32(off uint32, v uint32) { s.parent.Write32(s.base+off, v) }

// Verb descriptor bitfields (CORB entry layout).
const (
	verbPayloadPos   = 0
	verbPayloadMask  = 0xFFFFF
	verbNodeIDPos    = 20
	verbNodeIDMask   = 0xFF
	verbCodecAddrPos = 28
	verbCodecAddrMask = 0xF
)
