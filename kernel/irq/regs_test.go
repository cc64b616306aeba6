package irq

import (
	"bytes"
	"testing"

	"github.com/jacobobendrado/4810-Operating-System/kernel/kfmt"
)

func TestRegsPrint(t *testing.T) {
	buf := mockTTY()
	defer kfmt.SetOutputSink(nil)

	regs := Regs{
		EAX: 1,
		EBX: 2,
		ECX: 3,
		EDX: 4,
		ESI: 5,
		EDI: 6,
		EBP: 7,
		ESP: 0xbeef,
	}
	regs.Print()

	exp := "EAX = 00000001 EBX = 00000002\nECX = 00000003 EDX = 00000004\nESI = 00000005 EDI = 00000006\nEBP = 00000007 ESP = 0000beef\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFramePrint(t *testing.T) {
	buf := mockTTY()
	defer kfmt.SetOutputSink(nil)

	frame := Frame{
		EIP:    1,
		CS:     2,
		EFlags: 0x202,
	}
	frame.Print()

	exp := "EIP = 00000001 CS  = 00000002\nEFL = 00000202\n"

	if got := buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func mockTTY() *bytes.Buffer {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	// discard anything flushed from the early print buffer
	buf.Reset()
	return &buf
}
