package hashwx

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hashwx/errors"
)

// Memory is a bounds-checked view of a linear memory.
type Memory interface {
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// WrapMemory adapts a wazero memory. Out-of-range accesses return
// KindOutOfBounds errors in phase.
func WrapMemory(mem api.Memory, phase errors.Phase) Memory {
	return &wazeroMemory{mem: mem, phase: phase}
}

type wazeroMemory struct {
	mem   api.Memory
	phase errors.Phase
}

// Read copies length bytes starting at offset.
func (m *wazeroMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(m.phase, offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *wazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(m.phase, offset, uint32(len(data)))
	}
	return nil
}
