package multi

import (
	"github.com/probemux/probemux/probe"
)

// Typed operation surface. Proxy implements probe.Controller so it can be
// used as a drop-in replacement for a locally constructed controller; each
// method is a thin funnel into the generic call primitive.

var _ probe.Controller = (*Proxy)(nil)

func call0(p *Proxy, op string, args ...any) error {
	_, err := p.call(op, nil, args...)
	return err
}

func call1[T any](p *Proxy, op string, args ...any) (T, error) {
	var zero T
	v, err := p.call(op, nil, args...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, probe.Errorf(probe.CodeInternalError, "operation %q returned %T, want %T", op, v, zero)
	}
	return t, nil
}

func (p *Proxy) Open() error  { return call0(p, "Open") }
func (p *Proxy) Close() error { return call0(p, "Close") }
func (p *Proxy) IsOpen() (bool, error) {
	return call1[bool](p, "IsOpen")
}

func (p *Proxy) EnumEmuSNR() ([]uint32, error) {
	return call1[[]uint32](p, "EnumEmuSNR")
}

func (p *Proxy) ConnectToEmuWithSNR(snr uint32, speedKHz uint32) error {
	return call0(p, "ConnectToEmuWithSNR", snr, speedKHz)
}

func (p *Proxy) ConnectToEmuWithoutSNR(speedKHz uint32) error {
	return call0(p, "ConnectToEmuWithoutSNR", speedKHz)
}

func (p *Proxy) IsConnectedToEmu() (bool, error) {
	return call1[bool](p, "IsConnectedToEmu")
}

func (p *Proxy) ReadConnectedEmuSNR() (uint32, error) {
	return call1[uint32](p, "ReadConnectedEmuSNR")
}

func (p *Proxy) ResetConnectedEmu() error { return call0(p, "ResetConnectedEmu") }
func (p *Proxy) DisconnectFromEmu() error { return call0(p, "DisconnectFromEmu") }

func (p *Proxy) ConnectToDevice() error      { return call0(p, "ConnectToDevice") }
func (p *Proxy) DisconnectFromDevice() error { return call0(p, "DisconnectFromDevice") }
func (p *Proxy) IsConnectedToDevice() (bool, error) {
	return call1[bool](p, "IsConnectedToDevice")
}

func (p *Proxy) ReadDeviceVersion() (string, error) {
	return call1[string](p, "ReadDeviceVersion")
}

func (p *Proxy) ReadDeviceInfo() (probe.DeviceInfo, error) {
	return call1[probe.DeviceInfo](p, "ReadDeviceInfo")
}

func (p *Proxy) Recover() error { return call0(p, "Recover") }

func (p *Proxy) EraseAll() error { return call0(p, "EraseAll") }

func (p *Proxy) ErasePage(addr uint32) error { return call0(p, "ErasePage", addr) }

func (p *Proxy) EraseUICR() error { return call0(p, "EraseUICR") }

func (p *Proxy) ReadMemory(addr uint32, length uint32) ([]byte, error) {
	return call1[[]byte](p, "ReadMemory", addr, length)
}

func (p *Proxy) WriteMemory(addr uint32, data []byte, flash bool) error {
	return call0(p, "WriteMemory", addr, data, flash)
}

func (p *Proxy) ReadU32(addr uint32) (uint32, error) {
	return call1[uint32](p, "ReadU32", addr)
}

func (p *Proxy) WriteU32(addr uint32, value uint32, flash bool) error {
	return call0(p, "WriteU32", addr, value, flash)
}

func (p *Proxy) IsHalted() (bool, error) {
	return call1[bool](p, "IsHalted")
}

func (p *Proxy) Halt() error { return call0(p, "Halt") }

func (p *Proxy) Run(pc uint32, sp uint32) error { return call0(p, "Run", pc, sp) }

func (p *Proxy) Go() error { return call0(p, "Go") }

func (p *Proxy) Step() error { return call0(p, "Step") }

func (p *Proxy) ReadCPURegister(name string) (uint32, error) {
	return call1[uint32](p, "ReadCPURegister", name)
}

func (p *Proxy) WriteCPURegister(name string, value uint32) error {
	return call0(p, "WriteCPURegister", name, value)
}

func (p *Proxy) ReadDebugPortRegister(addr uint8) (uint32, error) {
	return call1[uint32](p, "ReadDebugPortRegister", addr)
}

func (p *Proxy) WriteDebugPortRegister(addr uint8, value uint32) error {
	return call0(p, "WriteDebugPortRegister", addr, value)
}

func (p *Proxy) ReadAccessPortRegister(apIndex uint8, addr uint8) (uint32, error) {
	return call1[uint32](p, "ReadAccessPortRegister", apIndex, addr)
}

func (p *Proxy) WriteAccessPortRegister(apIndex uint8, addr uint8, value uint32) error {
	return call0(p, "WriteAccessPortRegister", apIndex, addr, value)
}

func (p *Proxy) SysReset() error   { return call0(p, "SysReset") }
func (p *Proxy) DebugReset() error { return call0(p, "DebugReset") }
func (p *Proxy) PinReset() error   { return call0(p, "PinReset") }

func (p *Proxy) RTTStart() error { return call0(p, "RTTStart") }
func (p *Proxy) RTTStop() error  { return call0(p, "RTTStop") }

func (p *Proxy) RTTIsControlBlockFound() (bool, error) {
	return call1[bool](p, "RTTIsControlBlockFound")
}

func (p *Proxy) RTTReadChannelCount() (probe.RTTChannelCounts, error) {
	return call1[probe.RTTChannelCounts](p, "RTTReadChannelCount")
}

func (p *Proxy) RTTReadChannelInfo(index uint32, dir probe.RTTDirection) (probe.RTTChannelInfo, error) {
	return call1[probe.RTTChannelInfo](p, "RTTReadChannelInfo", index, dir)
}

func (p *Proxy) RTTRead(channel uint32, length uint32) ([]byte, error) {
	return call1[[]byte](p, "RTTRead", channel, length)
}

func (p *Proxy) RTTWrite(channel uint32, data []byte) (uint32, error) {
	return call1[uint32](p, "RTTWrite", channel, data)
}

func (p *Proxy) QSPIInit(opts map[string]any) error {
	return call0(p, "QSPIInit", opts)
}

func (p *Proxy) QSPIUninit() error { return call0(p, "QSPIUninit") }

func (p *Proxy) QSPIRead(addr uint32, length uint32) ([]byte, error) {
	return call1[[]byte](p, "QSPIRead", addr, length)
}

func (p *Proxy) QSPIWrite(addr uint32, data []byte) error {
	return call0(p, "QSPIWrite", addr, data)
}

func (p *Proxy) QSPIErase(addr uint32, length uint32) error {
	return call0(p, "QSPIErase", addr, length)
}
