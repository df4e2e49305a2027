package main

import (
	"encoding/binary"
	"errors"
)

// Packet types carried in the header.
const (
	PacketInvalid       uint8 = 0
	PacketClientInput   uint8 = 1
	PacketFullSnapshot  uint8 = 2
	PacketDeltaSnapshot uint8 = 3
)

// Change-mask bits, low to high. A delta record carries only the fields
// whose bit is set. MaskNone (no bits) never occurs for a live entity —
// unchanged entities are omitted entirely — so it is reserved as the
// removal tombstone for its id.
const (
	MaskPosX   uint8 = 1 << 0
	MaskPosY   uint8 = 1 << 1
	MaskVelX   uint8 = 1 << 2
	MaskVelY   uint8 = 1 << 3
	MaskHealth uint8 = 1 << 4
	MaskFlags  uint8 = 1 << 5

	MaskNone uint8 = 0
	MaskAll  uint8 = MaskPosX | MaskPosY | MaskVelX | MaskVelY | MaskHealth | MaskFlags
)

const (
	packetHeaderSize   = 7  // size:u16 type:u8 tick:u32
	fullRecordSize     = 25 // id + 5 * i32 + flags
	clientInputBodySize = 21
)

// Decode errors. Decoders never read past the supplied buffer; a short
// buffer yields ErrTruncatedPacket, structurally invalid content yields
// ErrBadPacket.
var (
	ErrTruncatedPacket = errors.New("truncated packet")
	ErrBadPacket       = errors.New("malformed packet")
)

// PacketHeader prefixes every wire packet. Size is the total packet
// length including the header itself. All integers little-endian.
type PacketHeader struct {
	Size uint16
	Type uint8
	Tick uint32
}

// DecodeHeader reads the packet header without consuming the body, so a
// transport can route on Type before full decoding.
func DecodeHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < packetHeaderSize {
		return PacketHeader{}, ErrTruncatedPacket
	}
	h := PacketHeader{
		Size: binary.LittleEndian.Uint16(buf[0:2]),
		Type: buf[2],
		Tick: binary.LittleEndian.Uint32(buf[3:7]),
	}
	if len(buf) < int(h.Size) {
		return PacketHeader{}, ErrTruncatedPacket
	}
	return h, nil
}

// packetWriter appends little-endian fields to a growing buffer and
// supports backpatching reserved slots.
type packetWriter struct {
	buf []byte
}

func (w *packetWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *packetWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *packetWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *packetWriter) i32(v int32)  { w.u32(uint32(v)) }

func (w *packetWriter) patchU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[off:], v)
}

func (w *packetWriter) patchU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

// header reserves the packet header; the size slot is patched by finish.
func (w *packetWriter) header(typ uint8, tick uint32) {
	w.u16(0)
	w.u8(typ)
	w.u32(tick)
}

func (w *packetWriter) finish() []byte {
	w.patchU16(0, uint16(len(w.buf)))
	return w.buf
}

// packetReader consumes little-endian fields with explicit bounds checks.
type packetReader struct {
	buf []byte
	off int
}

func (r *packetReader) remaining() int { return len(r.buf) - r.off }

func (r *packetReader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, ErrTruncatedPacket
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *packetReader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, ErrTruncatedPacket
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *packetReader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrTruncatedPacket
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *packetReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

// EncodeFull serializes the complete snapshot: header, then
// tick, entity_count and one fixed-size record per entity.
func EncodeFull(s *Snapshot) []byte {
	w := &packetWriter{buf: make([]byte, 0, packetHeaderSize+8+fullRecordSize*len(s.Entities))}
	w.header(PacketFullSnapshot, s.Tick)
	w.u32(s.Tick)
	w.u32(uint32(len(s.Entities)))
	for _, e := range s.Entities {
		w.u32(e.ID)
		w.i32(int32(e.PosX))
		w.i32(int32(e.PosY))
		w.i32(int32(e.VelX))
		w.i32(int32(e.VelY))
		w.i32(e.Health)
		w.u8(e.Flags)
	}
	return w.finish()
}

// DecodeFull is the exact inverse of EncodeFull. Server-side attributes
// (kind, radius, lifetime) are not replicated and come back zero-valued.
func DecodeFull(buf []byte) (*Snapshot, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Type != PacketFullSnapshot {
		return nil, ErrBadPacket
	}
	r := &packetReader{buf: buf, off: packetHeaderSize}

	tick, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	if int(count)*fullRecordSize > r.remaining() {
		return nil, ErrTruncatedPacket
	}

	snap := &Snapshot{Tick: tick, Entities: make([]EntityState, 0, count)}
	for i := uint32(0); i < count; i++ {
		var e EntityState
		if e.ID, err = r.u32(); err != nil {
			return nil, err
		}
		var px, py, vx, vy int32
		if px, err = r.i32(); err != nil {
			return nil, err
		}
		if py, err = r.i32(); err != nil {
			return nil, err
		}
		if vx, err = r.i32(); err != nil {
			return nil, err
		}
		if vy, err = r.i32(); err != nil {
			return nil, err
		}
		if e.Health, err = r.i32(); err != nil {
			return nil, err
		}
		if e.Flags, err = r.u8(); err != nil {
			return nil, err
		}
		e.PosX, e.PosY = FixedScalar(px), FixedScalar(py)
		e.VelX, e.VelY = FixedScalar(vx), FixedScalar(vy)
		snap.Entities = append(snap.Entities, e)
	}
	return snap, nil
}

// EncodeDelta serializes cur relative to ref, keyed by entity id.
// Unchanged entities contribute zero bytes. Entities absent from ref are
// written with every mask bit set. Ids present in ref but gone from cur
// are written as tombstones (id + MaskNone). The entity count is
// reserved first and backpatched once the true count is known.
//
// With no reference at all the delta degenerates to a full field list
// for every entity, so EncodeDelta(s, nil) returns the full encoding
// byte-for-byte and receivers treat it as a baseline.
func EncodeDelta(cur *Snapshot, ref *Snapshot) []byte {
	if ref == nil {
		return EncodeFull(cur)
	}
	refMap := ref.index()

	w := &packetWriter{buf: make([]byte, 0, packetHeaderSize+8+8*len(cur.Entities))}
	w.header(PacketDeltaSnapshot, cur.Tick)
	w.u32(cur.Tick)
	countPos := len(w.buf)
	w.u32(0) // entity_count, patched below

	count := uint32(0)
	for _, e := range cur.Entities {
		prev, known := refMap[e.ID]
		var mask uint8
		if !known {
			mask = MaskAll
		} else {
			if e.PosX != prev.PosX {
				mask |= MaskPosX
			}
			if e.PosY != prev.PosY {
				mask |= MaskPosY
			}
			if e.VelX != prev.VelX {
				mask |= MaskVelX
			}
			if e.VelY != prev.VelY {
				mask |= MaskVelY
			}
			if e.Health != prev.Health {
				mask |= MaskHealth
			}
			if e.Flags != prev.Flags {
				mask |= MaskFlags
			}
			if mask == MaskNone {
				continue
			}
		}

		w.u32(e.ID)
		w.u8(mask)
		if mask&MaskPosX != 0 {
			w.i32(int32(e.PosX))
		}
		if mask&MaskPosY != 0 {
			w.i32(int32(e.PosY))
		}
		if mask&MaskVelX != 0 {
			w.i32(int32(e.VelX))
		}
		if mask&MaskVelY != 0 {
			w.i32(int32(e.VelY))
		}
		if mask&MaskHealth != 0 {
			w.i32(e.Health)
		}
		if mask&MaskFlags != 0 {
			w.u8(e.Flags)
		}
		count++
	}

	// Whatever remains in refMap after stripping current ids is exactly
	// the set removed since ref. Tombstone them in ascending order so
	// encodings stay reproducible.
	for _, e := range cur.Entities {
		delete(refMap, e.ID)
	}
	removed := make([]uint32, 0, len(refMap))
	for id := range refMap {
		removed = append(removed, id)
	}
	sortU32(removed)
	for _, id := range removed {
		w.u32(id)
		w.u8(MaskNone)
		count++
	}

	w.patchU32(countPos, count)
	return w.finish()
}

// DeltaRecord is one decoded delta entry. Only fields flagged in Mask
// are meaningful; Mask == MaskNone tombstones the id.
type DeltaRecord struct {
	ID         uint32
	Mask       uint8
	PosX, PosY FixedScalar
	VelX, VelY FixedScalar
	Health     int32
	Flags      uint8
}

// DeltaPatch is the decoded form of a delta packet.
type DeltaPatch struct {
	Tick    uint32
	Records []DeltaRecord
}

// DecodeDelta parses a delta packet into its records without applying
// them.
func DecodeDelta(buf []byte) (*DeltaPatch, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.Type != PacketDeltaSnapshot {
		return nil, ErrBadPacket
	}
	r := &packetReader{buf: buf, off: packetHeaderSize}

	tick, err := r.u32()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	// Smallest possible record is a tombstone: id + mask.
	if int(count)*5 > r.remaining() {
		return nil, ErrTruncatedPacket
	}

	patch := &DeltaPatch{Tick: tick, Records: make([]DeltaRecord, 0, count)}
	for i := uint32(0); i < count; i++ {
		var rec DeltaRecord
		if rec.ID, err = r.u32(); err != nil {
			return nil, err
		}
		if rec.Mask, err = r.u8(); err != nil {
			return nil, err
		}
		if rec.Mask&^MaskAll != 0 {
			return nil, ErrBadPacket
		}
		var v int32
		if rec.Mask&MaskPosX != 0 {
			if v, err = r.i32(); err != nil {
				return nil, err
			}
			rec.PosX = FixedScalar(v)
		}
		if rec.Mask&MaskPosY != 0 {
			if v, err = r.i32(); err != nil {
				return nil, err
			}
			rec.PosY = FixedScalar(v)
		}
		if rec.Mask&MaskVelX != 0 {
			if v, err = r.i32(); err != nil {
				return nil, err
			}
			rec.VelX = FixedScalar(v)
		}
		if rec.Mask&MaskVelY != 0 {
			if v, err = r.i32(); err != nil {
				return nil, err
			}
			rec.VelY = FixedScalar(v)
		}
		if rec.Mask&MaskHealth != 0 {
			if rec.Health, err = r.i32(); err != nil {
				return nil, err
			}
		}
		if rec.Mask&MaskFlags != 0 {
			if rec.Flags, err = r.u8(); err != nil {
				return nil, err
			}
		}
		patch.Records = append(patch.Records, rec)
	}
	return patch, nil
}

// ApplyDelta reconstructs the current snapshot from the reference and a
// decoded patch. An id unknown to the reference must arrive fully
// populated (every mask bit set) or the patch is rejected.
func ApplyDelta(ref *Snapshot, patch *DeltaPatch) (*Snapshot, error) {
	state := ref.index()
	for _, rec := range patch.Records {
		if rec.Mask == MaskNone {
			delete(state, rec.ID)
			continue
		}
		e, known := state[rec.ID]
		if !known {
			if rec.Mask != MaskAll {
				return nil, ErrBadPacket
			}
			e = EntityState{ID: rec.ID}
		}
		if rec.Mask&MaskPosX != 0 {
			e.PosX = rec.PosX
		}
		if rec.Mask&MaskPosY != 0 {
			e.PosY = rec.PosY
		}
		if rec.Mask&MaskVelX != 0 {
			e.VelX = rec.VelX
		}
		if rec.Mask&MaskVelY != 0 {
			e.VelY = rec.VelY
		}
		if rec.Mask&MaskHealth != 0 {
			e.Health = rec.Health
		}
		if rec.Mask&MaskFlags != 0 {
			e.Flags = rec.Flags
		}
		state[rec.ID] = e
	}

	ids := make([]uint32, 0, len(state))
	for id := range state {
		ids = append(ids, id)
	}
	sortU32(ids)

	snap := &Snapshot{Tick: patch.Tick, Entities: make([]EntityState, 0, len(ids))}
	for _, id := range ids {
		snap.Entities = append(snap.Entities, state[id])
	}
	return snap, nil
}

// EncodeClientInput serializes one input command. The header tick is the
// input's target tick; the body does not repeat it.
func EncodeClientInput(in ClientInput) []byte {
	w := &packetWriter{buf: make([]byte, 0, packetHeaderSize+clientInputBodySize)}
	w.header(PacketClientInput, in.TargetTick)
	w.u32(in.ClientID)
	w.u32(in.InputSeq)
	w.u8(uint8(in.MoveDX))
	w.u8(uint8(in.MoveDY))
	w.u8(in.ActionFlags)
	w.u16(in.AbilityID)
	w.i32(int32(in.TargetX))
	w.i32(int32(in.TargetY))
	return w.finish()
}

// DecodeClientInput is the inverse of EncodeClientInput.
func DecodeClientInput(buf []byte) (ClientInput, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return ClientInput{}, err
	}
	if h.Type != PacketClientInput {
		return ClientInput{}, ErrBadPacket
	}
	r := &packetReader{buf: buf, off: packetHeaderSize}

	in := ClientInput{TargetTick: h.Tick}
	if in.ClientID, err = r.u32(); err != nil {
		return ClientInput{}, err
	}
	if in.InputSeq, err = r.u32(); err != nil {
		return ClientInput{}, err
	}
	var b uint8
	if b, err = r.u8(); err != nil {
		return ClientInput{}, err
	}
	in.MoveDX = int8(b)
	if b, err = r.u8(); err != nil {
		return ClientInput{}, err
	}
	in.MoveDY = int8(b)
	if in.ActionFlags, err = r.u8(); err != nil {
		return ClientInput{}, err
	}
	if in.AbilityID, err = r.u16(); err != nil {
		return ClientInput{}, err
	}
	var v int32
	if v, err = r.i32(); err != nil {
		return ClientInput{}, err
	}
	in.TargetX = FixedScalar(v)
	if v, err = r.i32(); err != nil {
		return ClientInput{}, err
	}
	in.TargetY = FixedScalar(v)
	return in, nil
}
