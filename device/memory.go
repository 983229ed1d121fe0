package device

// Memory is a device held entirely in RAM.
type Memory struct {
	data   []byte
	closed bool
}

// NewMemory returns a zeroed in-memory device of the given number of blocks.
func NewMemory(blocks uint32) *Memory {
	return &Memory{data: make([]byte, int(blocks)*BlockSize)}
}

// Blocks returns the capacity in blocks.
func (m *Memory) Blocks() uint32 { return uint32(len(m.data) / BlockSize) }

// Bytes exposes the raw medium.
func (m *Memory) Bytes() []byte { return m.data }

func (m *Memory) ReadBlock(addr uint32, buf []byte) error {
	off, err := m.offset(addr, buf)
	if err != nil {
		return transportErr("read", addr, err)
	}
	copy(buf, m.data[off:off+BlockSize])
	return nil
}

func (m *Memory) WriteBlock(addr uint32, buf []byte) error {
	off, err := m.offset(addr, buf)
	if err != nil {
		return transportErr("write", addr, err)
	}
	copy(m.data[off:off+BlockSize], buf)
	return nil
}

// Close marks the device closed. The contents stay readable through Bytes.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

func (m *Memory) offset(addr uint32, buf []byte) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if err := checkBuf(buf); err != nil {
		return 0, err
	}
	if addr >= m.Blocks() {
		return 0, ErrOutOfRange
	}
	return int(addr) * BlockSize, nil
}
