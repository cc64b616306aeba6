package heap

import "encoding/binary"

// Block header layout. Every block, free or allocated, starts with a packed
// 9-byte header:
//
//	+--------+--------+-------+
//	| next   | prev   | flags |
//	| uint32 | uint32 | uint8 |
//	+--------+--------+-------+
//
// next and prev link the block into the free list of its scale. An allocated
// block is an isolated node whose links both point back to itself. Bit 7 of
// flags is set while the block is free; bits 0-6 hold the block scale.
const (
	headerSize = 9

	nextOffset  = 0
	prevOffset  = 4
	flagsOffset = 8

	freeFlag  = 1 << 7
	scaleMask = freeFlag - 1

	// sentinelBase is the first of the reserved offsets that address the
	// free list heads. The heads live outside the arena so that an empty
	// list never consumes heap memory.
	sentinelBase = uint32(0xffffff00)
)

// listNode is the in-memory representation of a free list head.
type listNode struct {
	next, prev uint32
}

func sentinel(scale uint8) uint32 {
	return sentinelBase + uint32(scale)
}

func isSentinel(off uint32) bool {
	return off >= sentinelBase
}

func (h *Heap) next(off uint32) uint32 {
	if isSentinel(off) {
		return h.heads[off-sentinelBase].next
	}
	return binary.LittleEndian.Uint32(h.arena[off+nextOffset:])
}

func (h *Heap) prev(off uint32) uint32 {
	if isSentinel(off) {
		return h.heads[off-sentinelBase].prev
	}
	return binary.LittleEndian.Uint32(h.arena[off+prevOffset:])
}

func (h *Heap) setNext(off, v uint32) {
	if isSentinel(off) {
		h.heads[off-sentinelBase].next = v
		return
	}
	binary.LittleEndian.PutUint32(h.arena[off+nextOffset:], v)
}

func (h *Heap) setPrev(off, v uint32) {
	if isSentinel(off) {
		h.heads[off-sentinelBase].prev = v
		return
	}
	binary.LittleEndian.PutUint32(h.arena[off+prevOffset:], v)
}

func (h *Heap) scale(off uint32) uint8 {
	return h.arena[off+flagsOffset] & scaleMask
}

func (h *Heap) isFree(off uint32) bool {
	return h.arena[off+flagsOffset]&freeFlag != 0
}

// writeHeader initializes the header of an in-use, isolated block.
func (h *Heap) writeHeader(off uint32, scale uint8) {
	h.setNext(off, off)
	h.setPrev(off, off)
	h.arena[off+flagsOffset] = scale & scaleMask
}

// clearHeader zeroes the flags of a header that is no longer the start of a
// block. Scale 0 is below any supported minimum scale.
func (h *Heap) clearHeader(off uint32) {
	h.arena[off+flagsOffset] = 0
}

func (h *Heap) setScale(off uint32, scale uint8) {
	h.arena[off+flagsOffset] = (h.arena[off+flagsOffset] & freeFlag) | (scale & scaleMask)
}

// isolated returns true if the block links point back to the block itself.
func (h *Heap) isolated(off uint32) bool {
	return h.next(off) == off && h.prev(off) == off
}

// resetLists turns every list head into an empty, self-referencing sentinel.
func (h *Heap) resetLists() {
	for scale := range h.heads {
		s := sentinel(uint8(scale))
		h.heads[scale] = listNode{next: s, prev: s}
	}
}

// listEmpty returns true if the free list for scale contains no blocks.
func (h *Heap) listEmpty(scale uint8) bool {
	s := sentinel(scale)
	return h.next(s) == s
}

// pushFree marks the block at off as free and inserts it at the head of the
// free list that matches its scale.
func (h *Heap) pushFree(off uint32) {
	head := sentinel(h.scale(off))
	first := h.next(head)

	h.setNext(off, first)
	h.setPrev(off, head)
	h.setPrev(first, off)
	h.setNext(head, off)
	h.arena[off+flagsOffset] |= freeFlag
}

// removeFree unlinks the block at off from its free list, leaving it as an
// isolated in-use node.
func (h *Heap) removeFree(off uint32) {
	next, prev := h.next(off), h.prev(off)
	h.setNext(prev, next)
	h.setPrev(next, prev)

	h.setNext(off, off)
	h.setPrev(off, off)
	h.arena[off+flagsOffset] &^= freeFlag
}

// popFree removes and returns the first block of the free list for scale. It
// returns false if the list is empty.
func (h *Heap) popFree(scale uint8) (uint32, bool) {
	if h.listEmpty(scale) {
		return 0, false
	}

	off := h.next(sentinel(scale))
	h.removeFree(off)
	return off, true
}

// countFree walks the free list for scale and returns its length.
func (h *Heap) countFree(scale uint8) int {
	var (
		count int
		head  = sentinel(scale)
	)
	for cur := h.next(head); cur != head; cur = h.next(cur) {
		count++
	}
	return count
}
