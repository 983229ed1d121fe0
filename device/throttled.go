package device

import (
	"context"

	"github.com/hupe1980/botfs/resource"
)

// Throttled limits the transfer rate of another device.
type Throttled struct {
	dev Device
	rc  *resource.Controller
}

// NewThrottled charges every transfer of dev against the IO limit of rc.
func NewThrottled(dev Device, rc *resource.Controller) *Throttled {
	return &Throttled{dev: dev, rc: rc}
}

func (t *Throttled) ReadBlock(addr uint32, buf []byte) error {
	if err := t.rc.WaitIO(context.Background(), BlockSize); err != nil {
		return transportErr("read", addr, err)
	}
	return t.dev.ReadBlock(addr, buf)
}

func (t *Throttled) WriteBlock(addr uint32, buf []byte) error {
	if err := t.rc.WaitIO(context.Background(), BlockSize); err != nil {
		return transportErr("write", addr, err)
	}
	return t.dev.WriteBlock(addr, buf)
}

func (t *Throttled) Close() error { return t.dev.Close() }
