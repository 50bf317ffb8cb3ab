package hwsim

import (
	"testing"

	"github.com/ironsteel/fosdem-video-linux/internal/hw"
)

func TestRegisters_Journal(t *testing.T) {
	regs := NewRegisters()

	regs.Write(hw.RegEnable, 1)
	regs.Write(hw.RegCapture, 2)
	regs.Set(hw.RegIntStatus, 2) // hardware-driven, not journaled

	if got := regs.Read(hw.RegIntStatus); got != 2 {
		t.Errorf("Read(INT_STATUS) = %d, want 2", got)
	}

	journal := regs.Journal()
	if len(journal) != 2 {
		t.Fatalf("journal has %d writes, want 2", len(journal))
	}
	if journal[0] != (WriteOp{hw.RegEnable, 1}) || journal[1] != (WriteOp{hw.RegCapture, 2}) {
		t.Errorf("journal = %v", journal)
	}
}

func TestRegisters_IntStatusWriteOneToClear(t *testing.T) {
	regs := NewRegisters()

	regs.Set(hw.RegIntStatus, 0x12)
	regs.Write(hw.RegIntStatus, 0x02)

	if got := regs.Read(hw.RegIntStatus); got != 0x10 {
		t.Errorf("Read(INT_STATUS) after partial ack = 0x%02X, want 0x10", got)
	}
}

func TestPool_LookupResolvesAllocations(t *testing.T) {
	pool := NewPool(0x40000000, 256)

	region, err := pool.AllocCoherent(64)
	if err != nil {
		t.Fatalf("AllocCoherent() failed: %v", err)
	}

	data := pool.Lookup(region.Addr, 64)
	if data == nil {
		t.Fatal("Lookup() returned nil for a live allocation")
	}

	data[0] = 0xAB
	if region.Data[0] != 0xAB {
		t.Error("Lookup() does not alias the allocation's mapping")
	}

	if pool.Lookup(0x1000, 4) != nil {
		t.Error("Lookup() resolved an address outside the arena")
	}
}

func TestDevice_CompleteFrameGating(t *testing.T) {
	dev := NewDevice(3, 16, 4096)

	// Disabled device: no frame, no status change.
	fired, err := dev.CompleteFrame()
	if err != nil {
		t.Fatalf("CompleteFrame() failed: %v", err)
	}
	if fired {
		t.Error("CompleteFrame() fired with module disabled")
	}

	// Enable the module, capture and interrupt, and point slot A at real
	// memory.
	dev.Regs.Set(hw.RegEnable, hw.EnableModule)
	dev.Regs.Set(hw.RegCapture, hw.CaptureVideo)
	dev.Regs.Set(hw.RegIntEnable, hw.IntFrameDone)
	for plane := 0; plane < 3; plane++ {
		region, err := dev.Pool.AllocCoherent(16)
		if err != nil {
			t.Fatalf("AllocCoherent() failed: %v", err)
		}
		dev.Regs.Set(hw.PlaneBufferReg(0, plane), region.Addr)
	}

	fired, err = dev.CompleteFrame()
	if err != nil {
		t.Fatalf("CompleteFrame() failed: %v", err)
	}
	if !fired {
		t.Fatal("CompleteFrame() did not fire with capture armed")
	}
	if dev.Regs.Read(hw.RegIntStatus)&hw.IntFrameDone == 0 {
		t.Error("frame-done status bit not latched")
	}
}
