package tty

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jacobobendrado/4810-Operating-System/device"
)

var _ device.Driver = (*Loopback)(nil)
var _ Device = (*Loopback)(nil)

func TestLoopbackWrite(t *testing.T) {
	var out bytes.Buffer
	l := NewLoopback(&out, nil)

	if n, err := l.Write([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("expected to write 5 bytes; got %d, %v", n, err)
	}
	if out.String() != "hello" {
		t.Fatalf("expected output %q; got %q", "hello", out.String())
	}

	discard := NewLoopback(nil, nil)
	if n, err := discard.Write([]byte("dropped")); err != nil || n != 7 {
		t.Fatalf("expected a nil output to discard writes; got %d, %v", n, err)
	}
}

func TestLoopbackFeed(t *testing.T) {
	var out bytes.Buffer
	l := NewLoopback(&out, nil)

	l.Feed("echo hi\nexit")
	buf := make([]byte, 32)

	if n := l.ReadLine(buf); string(buf[:n]) != "echo hi\n" {
		t.Fatalf("expected to read the first line; got %q", buf[:n])
	}
	if n := l.ReadLine(buf); n != 0 {
		t.Fatalf("expected an unterminated line not to be ready; got %q", buf[:n])
	}

	l.Close()
	if n := l.ReadLine(buf); string(buf[:n]) != "exit" {
		t.Fatalf("expected Close to flush the partial line; got %q", buf[:n])
	}
	if !l.Drained() {
		t.Fatal("expected loopback to be drained")
	}
	if out.Len() != 0 {
		t.Fatalf("expected fed input not to be echoed; got %q", out.String())
	}
}

func TestLoopbackReadFrom(t *testing.T) {
	l := NewLoopback(nil, nil)

	n, err := l.ReadFrom(strings.NewReader("a\nb\n"))
	if err != nil || n != 4 {
		t.Fatalf("expected to consume 4 bytes; got %d, %v", n, err)
	}

	if !l.isClosed() {
		t.Fatal("expected the input to be closed at EOF")
	}

	exp := []string{"a\n", "b\n"}
	if got := readLines(&l.lineBuffer, 8); strings.Join(got, "|") != strings.Join(exp, "|") {
		t.Fatalf("expected lines %q; got %q", exp, got)
	}
}

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) { return 0, errors.New("read failed") }

func TestLoopbackDriverInterface(t *testing.T) {
	var logBuf bytes.Buffer
	l := NewLoopback(nil, failingReader{})

	if err := l.DriverInit(&logBuf); err != nil {
		t.Fatal(err)
	}

	if l.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := l.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}

	deadline := time.Now().Add(5 * time.Second)
	for !l.Drained() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the input pump to stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStdioProbe(t *testing.T) {
	drv := probeForStdio()
	if drv == nil {
		t.Fatal("expected probeForStdio to return a driver")
	}

	if drv.DriverName() != LoopbackName {
		t.Fatalf("expected a %q driver; got %q", LoopbackName, drv.DriverName())
	}
}
