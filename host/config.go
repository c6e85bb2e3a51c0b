package host

import (
	"github.com/ardnew/pciusb/host/hal"
)

// genericConfig implements hal.ConfigSpace on top of a function's
// width-parameterized accessors.
type genericConfig struct {
	fn hal.Function
}

func (g genericConfig) ReadConfigByte(offset uint8) (uint8, error) {
	v, err := g.fn.ReadConfig(offset, hal.Width8)
	return uint8(v), err
}

func (g genericConfig) ReadConfigWord(offset uint8) (uint16, error) {
	v, err := g.fn.ReadConfig(offset, hal.Width16)
	return uint16(v), err
}

func (g genericConfig) ReadConfigLong(offset uint8) (uint32, error) {
	return g.fn.ReadConfig(offset, hal.Width32)
}

func (g genericConfig) WriteConfigByte(offset uint8, value uint8) error {
	return g.fn.WriteConfig(offset, hal.Width8, uint32(value))
}

func (g genericConfig) WriteConfigWord(offset uint8, value uint16) error {
	return g.fn.WriteConfig(offset, hal.Width16, uint32(value))
}

func (g genericConfig) WriteConfigLong(offset uint8, value uint32) error {
	return g.fn.WriteConfig(offset, hal.Width32, value)
}

// newConfigAccessor selects the configuration space strategy for fn: its own
// typed method table when it has one, the generic path otherwise.
func newConfigAccessor(fn hal.Function) hal.ConfigSpace {
	if cs, ok := fn.(hal.ConfigSpace); ok {
		return cs
	}
	return genericConfig{fn: fn}
}
