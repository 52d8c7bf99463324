// Package probe defines the device control surface for a single debug probe.
//
// A Controller wraps one native control-library instance and exposes its
// operations: emulator enumeration and connection, flash erase/program, memory
// and register access, CPU control, and RTT channel I/O. The package does not
// load the native library itself; concrete drivers register themselves per
// device family with Register, and Open constructs the driver matching the
// requested family.
//
// The native library tolerates at most one live instance per OS process. Open
// enforces that invariant and Instantiated reports it, which is what lets
// callers (notably the multi package) run several probes concurrently by
// giving each its own process.
package probe

import "io"

// DefaultSpeedKHz is the default SWD/JTAG interface speed used when a
// connect operation is given a zero speed.
const DefaultSpeedKHz uint32 = 2000

// RTTDirection selects one side of an RTT channel pair.
type RTTDirection uint8

const (
	RTTDown RTTDirection = 0 // host → target
	RTTUp   RTTDirection = 1 // target → host
)

// DeviceInfo describes the connected target device.
type DeviceInfo struct {
	Family       string
	Version      string
	CodeAddress  uint32
	CodeSize     uint32
	RAMAddress   uint32
	RAMSize      uint32
	UICRAddress  uint32
	FlashPageSub uint32
}

// RTTChannelCounts holds the number of configured RTT channels per direction.
type RTTChannelCounts struct {
	Down uint32
	Up   uint32
}

// RTTChannelInfo describes a single RTT channel.
type RTTChannelInfo struct {
	Index     uint32
	Direction RTTDirection
	Name      string
	Size      uint32
}

// Config carries the parameters for constructing a Controller.
type Config struct {
	// Family is the target device family identifier, e.g. "nrf52".
	Family string

	// LibraryPath optionally points at the backing native library. Empty
	// means the driver resolves its default installation path.
	LibraryPath string

	// Log enables driver logging.
	Log bool

	// LogPrefix is prepended to every driver log line.
	LogPrefix string

	// LogFilePath redirects driver logging to a file opened in write mode.
	LogFilePath string

	// LogSink, if set, receives driver log output directly. Takes
	// precedence over LogFilePath. Not transportable across a process
	// boundary, so it is only honored by same-process construction.
	LogSink io.Writer
}

// Controller is the full operation surface of one debug probe. All methods
// block until the underlying operation completes, and every method may be
// invoked remotely by name, so parameters and results are restricted to
// plain transportable values.
type Controller interface {
	// Open acquires the native library and probe resources. Close releases
	// them. These are the structural acquire/release pair; everything else
	// requires an open controller.
	Open() error
	Close() error
	IsOpen() (bool, error)

	EnumEmuSNR() ([]uint32, error)
	ConnectToEmuWithSNR(snr uint32, speedKHz uint32) error
	ConnectToEmuWithoutSNR(speedKHz uint32) error
	IsConnectedToEmu() (bool, error)
	ReadConnectedEmuSNR() (uint32, error)
	ResetConnectedEmu() error
	DisconnectFromEmu() error

	ConnectToDevice() error
	DisconnectFromDevice() error
	IsConnectedToDevice() (bool, error)
	ReadDeviceVersion() (string, error)
	ReadDeviceInfo() (DeviceInfo, error)
	Recover() error

	EraseAll() error
	ErasePage(addr uint32) error
	EraseUICR() error
	ReadMemory(addr uint32, length uint32) ([]byte, error)
	WriteMemory(addr uint32, data []byte, flash bool) error
	ReadU32(addr uint32) (uint32, error)
	WriteU32(addr uint32, value uint32, flash bool) error

	IsHalted() (bool, error)
	Halt() error
	Run(pc uint32, sp uint32) error
	Go() error
	Step() error
	ReadCPURegister(name string) (uint32, error)
	WriteCPURegister(name string, value uint32) error

	ReadDebugPortRegister(addr uint8) (uint32, error)
	WriteDebugPortRegister(addr uint8, value uint32) error
	ReadAccessPortRegister(apIndex uint8, addr uint8) (uint32, error)
	WriteAccessPortRegister(apIndex uint8, addr uint8, value uint32) error

	SysReset() error
	DebugReset() error
	PinReset() error

	RTTStart() error
	RTTStop() error
	RTTIsControlBlockFound() (bool, error)
	RTTReadChannelCount() (RTTChannelCounts, error)
	RTTReadChannelInfo(index uint32, dir RTTDirection) (RTTChannelInfo, error)
	RTTRead(channel uint32, length uint32) ([]byte, error)
	RTTWrite(channel uint32, data []byte) (uint32, error)

	QSPIInit(opts map[string]any) error
	QSPIUninit() error
	QSPIRead(addr uint32, length uint32) ([]byte, error)
	QSPIWrite(addr uint32, data []byte) error
	QSPIErase(addr uint32, length uint32) error
}
