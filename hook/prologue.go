package hook

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// jumpSize is the length of jmp [rip+0] followed by an absolute address.
const jumpSize = 14

// maxPrologue bounds how far past the entry point decoding may read. The
// longest x86 instruction is 15 bytes.
const maxPrologue = jumpSize + 15

type relocation struct {
	off int // start of the rel32 field in the copied bytes
	end int // end of the instruction holding it
}

// prologue is the run of whole instructions the patch overwrites.
type prologue struct {
	code   []byte
	relocs []relocation
}

// decodePrologue takes whole instructions from code until at least need bytes
// are covered.
func decodePrologue(code []byte, need int) (*prologue, error) {
	p := &prologue{}
	n := 0
	for n < need {
		if n >= len(code) {
			return nil, ErrPrologueTooShort
		}
		inst, err := x86asm.Decode(code[n:], 64)
		if err != nil {
			return nil, fmt.Errorf("decode at +%#x: %w", n, err)
		}
		switch {
		case inst.PCRel == 4:
			p.relocs = append(p.relocs, relocation{off: n + inst.PCRelOff, end: n + inst.Len})
		case inst.PCRel != 0:
			return nil, fmt.Errorf("%w: %v at +%#x", ErrRelativeAddr, inst, n)
		}
		n += inst.Len
		if n < need && endsFlow(inst.Op) {
			return nil, fmt.Errorf("%w: %v at +%#x", ErrPrologueTooShort, inst.Op, n-inst.Len)
		}
	}
	p.code = append([]byte(nil), code[:n]...)
	return p, nil
}

func endsFlow(op x86asm.Op) bool {
	switch op {
	case x86asm.RET, x86asm.JMP, x86asm.UD2, x86asm.HLT:
		return true
	}
	return false
}

// relocate returns the prologue bytes rewritten to run at newPC.
func (p *prologue) relocate(oldPC, newPC uintptr) ([]byte, error) {
	out := append([]byte(nil), p.code...)
	for _, r := range p.relocs {
		disp := int64(int32(binary.LittleEndian.Uint32(out[r.off:])))
		dest := int64(oldPC) + int64(r.end) + disp
		moved := dest - (int64(newPC) + int64(r.end))
		if moved < math.MinInt32 || moved > math.MaxInt32 {
			return nil, fmt.Errorf("%w: %#x from %#x", ErrOutOfRange, dest, newPC)
		}
		binary.LittleEndian.PutUint32(out[r.off:], uint32(int32(moved)))
	}
	return out, nil
}

// absJump encodes jmp [rip+0]; .quad to.
func absJump(to uintptr) []byte {
	b := make([]byte, jumpSize)
	b[0], b[1] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	return b
}

// entryPatch is the jump written over the prologue, padded with int3 so the
// overwritten tail never decodes into something live.
func entryPatch(to uintptr, length int) []byte {
	b := absJump(to)
	for len(b) < length {
		b = append(b, 0xCC)
	}
	return b
}
