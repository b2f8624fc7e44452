package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"kiln_control/internal/models"
)

// Status block layout. Every field is a little-endian int32; offsets are the
// single source of truth for the daemon and all readers.
const (
	offMagic          = 0
	offSV             = 4
	offPV             = 8
	offSegmentElapsed = 12
	offProgramElapsed = 16
	offSegmentPlanned = 20
	offSegmentType    = 24
	offFiringID       = 28
	offStepID         = 32

	// StatusSize is the size of the status block in bytes.
	StatusSize = 36

	// statusMagic is "KLN1"; readers use it to tell a live block from a zeroed or stale file.
	statusMagic uint32 = 0x314e4c4b
)

// ErrStatusUnavailable means the block holds no published status (daemon not running).
var ErrStatusUnavailable = errors.New("status block not initialised")

// EncodeStatus writes s into b, which must be at least StatusSize bytes.
// Fields are written one at a time; a concurrent reader may see a mix of two
// consecutive snapshots but never a torn field.
func EncodeStatus(b []byte, s models.LiveStatus) {
	_ = b[StatusSize-1]
	put := func(off int, v int32) { binary.LittleEndian.PutUint32(b[off:off+4], uint32(v)) }
	put(offSV, s.SV)
	put(offPV, s.PV)
	put(offSegmentElapsed, s.SegmentElapsed)
	put(offProgramElapsed, s.ProgramElapsed)
	put(offSegmentPlanned, s.SegmentPlanned)
	put(offSegmentType, int32(s.SegmentType))
	put(offFiringID, s.FiringID)
	put(offStepID, s.StepID)
	binary.LittleEndian.PutUint32(b[offMagic:offMagic+4], statusMagic)
}

// DecodeStatus reads a status snapshot from b. A block with a segment type code
// outside the known set is treated as unavailable.
func DecodeStatus(b []byte) (models.LiveStatus, error) {
	if len(b) < StatusSize || binary.LittleEndian.Uint32(b[offMagic:offMagic+4]) != statusMagic {
		return models.LiveStatus{}, ErrStatusUnavailable
	}
	get := func(off int) int32 { return int32(binary.LittleEndian.Uint32(b[off : off+4])) }
	typ := models.SegmentType(get(offSegmentType))
	if !typ.Valid() {
		return models.LiveStatus{}, fmt.Errorf("%w: unknown segment type %d", ErrStatusUnavailable, int32(typ))
	}
	return models.LiveStatus{
		SV:             get(offSV),
		PV:             get(offPV),
		SegmentElapsed: get(offSegmentElapsed),
		ProgramElapsed: get(offProgramElapsed),
		SegmentPlanned: get(offSegmentPlanned),
		SegmentType:    typ,
		FiringID:       get(offFiringID),
		StepID:         get(offStepID),
	}, nil
}

// invalidate clears the magic so readers stop trusting the block.
func invalidate(b []byte) {
	binary.LittleEndian.PutUint32(b[offMagic:offMagic+4], 0)
}
