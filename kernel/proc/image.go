package proc

import (
	"encoding/binary"

	"github.com/jacobobendrado/4810-Operating-System/kernel/mem"
	"github.com/jacobobendrado/4810-Operating-System/kernel/mem/heap"
)

const (
	wordSize = 4

	// imageWords is the number of words pushed to a new process stack.
	imageWords = 13
	imageSize  = mem.Size(imageWords * wordSize)

	// flagIF is the interrupt enable bit of EFLAGS.
	flagIF = 1 << 9

	// initialEFlags has IF and the always-one reserved bit 1 set.
	initialEFlags = 0x0202

	// killTrampoline is the return address that routes a process whose
	// entry point returns into KillProcess.
	killTrampoline = 0xc0de0001

	// entryTokenBase tags the return address that starts a process entry
	// point. The low bits carry the process PID.
	entryTokenBase = 0xe0000000

	// Placeholder register values seeded into a new stack image.
	seedEAX = 0xAAAA
	seedEBX = 0xBBBB
	seedECX = 0xCCCC
	seedEDX = 0xDDDD
	seedESI = 0x0E51
	seedEDI = 0x0ED1
)

func entryToken(pid PID) uint32 {
	return entryTokenBase | uint32(pid)
}

// buildStackImage synthesizes the initial stack of a process inside stack,
// a view of the heap block at addr. From the top of the stack down, the image
// holds:
//
//	pid             argument of the kill trampoline
//	killTrampoline  return address of the entry point
//	entry token     popped by ret once the registers are restored
//	stack top       real start of the stack
//	EAX ECX EDX EBX ESP EBP ESI EDI
//	EFLAGS          <- ESP
//
// It returns the context that resumes the process at its entry point.
func buildStackImage(stack []byte, addr heap.Addr, pid PID) Context {
	top := heap.Addr(uint32(len(stack))&^(wordSize-1)) - wordSize

	stackTop := addr + top
	words := []uint32{
		uint32(pid),
		killTrampoline,
		entryToken(pid),
		uint32(stackTop),
		seedEAX,
		seedECX,
		seedEDX,
		seedEBX,
		// ESP and EBP point at the stack top slot, below the trampoline
		// frame and the entry token.
		uint32(stackTop - 3*wordSize), // ESP
		uint32(stackTop - 3*wordSize), // EBP
		seedESI,
		seedEDI,
		initialEFlags,
	}

	off := top
	for i, word := range words {
		if i != 0 {
			off -= wordSize
		}
		binary.LittleEndian.PutUint32(stack[off:], word)
	}

	return Context{
		ESP:         addr + off,
		StackTop:    stackTop,
		StackBottom: addr,
		pid:         pid,
	}
}

// stackReader pops words from a process stack image.
type stackReader struct {
	stack []byte
	base  heap.Addr
	esp   heap.Addr
}

func (r *stackReader) pop() uint32 {
	off := r.esp - r.base
	if int(off)+wordSize > len(r.stack) {
		return 0
	}

	r.esp += wordSize
	return binary.LittleEndian.Uint32(r.stack[off:])
}
