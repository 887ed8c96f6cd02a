package runtime

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/replicode/replicode/pkg/clock"
	"github.com/replicode/replicode/pkg/engine"
	"github.com/replicode/replicode/pkg/process"
	"github.com/replicode/replicode/pkg/wire"
)

// Syscall numbers a guest can trap into. The interpreter backend maps
// its own opcode encoding onto these before handing a SyscallRequest to
// the scheduler.
const (
	SysFDRead = iota
	SysFDWrite
	SysClockTimeGet
	SysPathOpen
	SysPathUnlink
	SysSockOpen
	SysSockConnect
	SysSockAccept
	SysSockSend
	SysSockRecv
	SysSockClose
	SysProcExit
)

// fileIOBlockThreshold is the read size past which path_open emulates
// I/O latency by blocking the guest with BlockFileIO.
const fileIOBlockThreshold = 1 << 20 // 1 MiB

// pathOpen flag bits, packed into Args[0]. A real interpreter binding
// packs the guest's path length into Args[1] and the path string one
// byte per word starting at Args[2];
// the mock engine's scripted "syscall N a b c..." grammar exercises the
// same convention directly.
const (
	pathFlagCreate    uint64 = 1 << 0
	pathFlagDirectory uint64 = 1 << 1
)

// Syscalls implements the host side of every syscall a guest can trap
// into: stdio against the FD table, clock reads against the shared
// simulated clock, filesystem access confined to the guest's sandbox
// root with quota enforcement, and network calls handed off to the
// coordinator as NetworkOperation requests.
type Syscalls struct {
	clock   *clock.Clock
	netOut  chan<- wire.NetworkOperation // NetworkOut records destined for the coordinator
	onExit  func(pid uint64, code int32)
	onFault func(pid uint64, reason string)
}

// NewSyscalls builds a syscall interceptor sharing clk and forwarding
// NetworkOut requests on netOut.
func NewSyscalls(clk *clock.Clock, netOut chan<- wire.NetworkOperation) *Syscalls {
	return &Syscalls{clock: clk, netOut: netOut}
}

// Handle services req on behalf of p. It returns the result words to
// hand back to the guest when the syscall completes synchronously
// (reason == process.BlockNone), or the BlockReason the scheduler
// should park the guest on otherwise; results from a blocking call
// arrive later through Scheduler.DeliverInput/DeliverNetworkResult.
func (s *Syscalls) Handle(p *process.Process, req engine.SyscallRequest) (results []uint64, reason process.BlockReason) {
	switch req.Number {
	case SysFDRead:
		return s.fdRead(p, req)
	case SysFDWrite:
		return s.fdWrite(p, req)
	case SysClockTimeGet:
		return []uint64{s.clock.Now()}, process.BlockNone
	case SysPathOpen:
		return s.pathOpen(p, req)
	case SysPathUnlink:
		return s.pathUnlink(p, req)
	case SysSockOpen, SysSockConnect, SysSockAccept, SysSockSend, SysSockRecv, SysSockClose:
		return s.network(p, req)
	case SysProcExit:
		return nil, process.BlockNone
	default:
		return []uint64{errnoBadSyscall}, process.BlockNone
	}
}

const (
	errnoSuccess     = 0
	errnoBadSyscall  = 1
	errnoBadFD       = 2
	errnoAgain       = 3 // WASI-style "try again" used to signal blocking
	errnoSandboxPerm = 4
	errnoQuota       = 5
)

func (s *Syscalls) fdRead(p *process.Process, req engine.SyscallRequest) ([]uint64, process.BlockReason) {
	fd := int(req.Args[0])
	entry, err := p.FDs.Get(fd)
	if err != nil || entry == nil || entry.Kind != process.FDFile {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	if entry.ReadPtr >= len(entry.Buffer) {
		return nil, process.BlockStdinRead // block until an FDMsg record delivers more data
	}
	// The actual byte copy into guest memory happens via
	// engine.Machine.Memory() in the scheduler; here we only advance
	// the read cursor and report how much became available.
	entry.ReadPtr = len(entry.Buffer)
	return []uint64{errnoSuccess, uint64(len(entry.Buffer))}, process.BlockNone
}

func (s *Syscalls) fdWrite(p *process.Process, req engine.SyscallRequest) ([]uint64, process.BlockReason) {
	if len(req.Args) < 1 {
		return []uint64{errnoBadSyscall}, process.BlockNone
	}
	fd := int(req.Args[0])
	entry, err := p.FDs.Get(fd)
	if err != nil || entry == nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	data := wordsToBytes(req.Args[1:])

	// Standard I/O writes flush straight to the host stream and are
	// never quota-accounted; only filesystem mutations are (§4.7).
	switch fd {
	case process.FDStdin:
		return []uint64{errnoBadFD}, process.BlockNone
	case process.FDStdout:
		os.Stdout.Write(data)
		return []uint64{errnoSuccess, uint64(len(data))}, process.BlockNone
	case process.FDStderr:
		os.Stderr.Write(data)
		return []uint64{errnoSuccess, uint64(len(data))}, process.BlockNone
	}

	if entry.Kind != process.FDFile || entry.IsDirectory || entry.HostPath == "" {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	f, err := os.OpenFile(entry.HostPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	return []uint64{errnoSuccess, uint64(len(data))}, process.BlockNone
}

func wordsToBytes(words []uint64) []byte {
	b := make([]byte, len(words))
	for i, w := range words {
		b[i] = byte(w)
	}
	return b
}

// decodePathArg reads a length-prefixed byte string starting at
// args[lenIdx]: args[lenIdx] is the length, args[lenIdx+1:] its bytes.
func decodePathArg(args []uint64, lenIdx int) (string, bool) {
	if lenIdx >= len(args) {
		return "", false
	}
	n := int(args[lenIdx])
	if n < 0 || lenIdx+1+n > len(args) {
		return "", false
	}
	return string(wordsToBytes(args[lenIdx+1 : lenIdx+1+n])), true
}

// canonicalizeSandboxPath resolves path against root and rejects any
// result outside of it, including via ".." traversal or a symlink-free
// absolute path.
func canonicalizeSandboxPath(root, guestPath string) (string, error) {
	full := filepath.Join(root, guestPath)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", process.ErrSandboxEscape
	}
	return full, nil
}

// killForQuota forcibly finishes p and deletes its sandbox root, per
// §7's quota-exceeded handling.
func (s *Syscalls) killForQuota(p *process.Process) {
	p.Finish()
	_ = os.RemoveAll(p.SandboxRoot)
}

// accountCreate charges the disk-usage counter for a just-created path,
// killing the guest and releasing the path again if that exceeds quota.
func (s *Syscalls) accountCreate(p *process.Process, path string) error {
	size := int64(4096)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := p.UsageAdd(size); err != nil {
		s.killForQuota(p)
		return err
	}
	return nil
}

func readDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func dirSize(path string) (int64, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.IsDir() {
			sub, err := dirSize(full)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// pathOpen resolves a guest path against the sandbox root, canonicalizing
// and rejecting any escape, then either opens a file (creating it when
// pathFlagCreate is set) or lists a directory into a newline-joined
// buffer an fd_readdir-style read streams out via the FD's read pointer.
func (s *Syscalls) pathOpen(p *process.Process, req engine.SyscallRequest) ([]uint64, process.BlockReason) {
	if len(req.Args) < 2 {
		return []uint64{errnoBadSyscall}, process.BlockNone
	}
	flags := req.Args[0]
	guestPath, ok := decodePathArg(req.Args, 1)
	if !ok {
		return []uint64{errnoBadSyscall}, process.BlockNone
	}

	full, err := canonicalizeSandboxPath(p.SandboxRoot, guestPath)
	if err != nil {
		return []uint64{errnoSandboxPerm}, process.BlockNone
	}

	asDir := flags&pathFlagDirectory != 0
	create := flags&pathFlagCreate != 0

	if asDir && create {
		if err := os.Mkdir(full, 0755); err != nil && !os.IsExist(err) {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		if err := s.accountCreate(p, full); err != nil {
			return []uint64{errnoQuota}, process.BlockNone
		}
	}

	info, err := os.Stat(full)
	if err != nil {
		if asDir || !create {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		f, err := os.Create(full)
		if err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		f.Close()
		if info, err = os.Stat(full); err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
	}

	entry := &process.FDEntry{Kind: process.FDFile, HostPath: full}
	if info.IsDir() {
		names, err := readDirNames(full)
		if err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		entry.IsDirectory = true
		entry.Buffer = []byte(strings.Join(names, "\n"))
	} else {
		if info.Size() > fileIOBlockThreshold {
			p.PulseBlock(process.BlockFileIO)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		entry.Buffer = data
	}

	fd, err := p.FDs.Allocate(entry)
	if err != nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	return []uint64{errnoSuccess, uint64(fd)}, process.BlockNone
}

// pathUnlink removes a file or, when pathFlagDirectory is set, an empty
// directory, crediting the removed bytes back to the guest's disk-usage
// counter.
func (s *Syscalls) pathUnlink(p *process.Process, req engine.SyscallRequest) ([]uint64, process.BlockReason) {
	if len(req.Args) < 2 {
		return []uint64{errnoBadSyscall}, process.BlockNone
	}
	flags := req.Args[0]
	guestPath, ok := decodePathArg(req.Args, 1)
	if !ok {
		return []uint64{errnoBadSyscall}, process.BlockNone
	}
	full, err := canonicalizeSandboxPath(p.SandboxRoot, guestPath)
	if err != nil {
		return []uint64{errnoSandboxPerm}, process.BlockNone
	}

	if flags&pathFlagDirectory != 0 {
		size, err := dirSize(full)
		if err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		if err := os.Remove(full); err != nil {
			return []uint64{errnoBadFD}, process.BlockNone
		}
		p.UsageSub(size)
		return []uint64{errnoSuccess}, process.BlockNone
	}

	info, err := os.Stat(full)
	if err != nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	if err := os.Remove(full); err != nil {
		return []uint64{errnoBadFD}, process.BlockNone
	}
	p.UsageSub(info.Size())
	return []uint64{errnoSuccess}, process.BlockNone
}

func (s *Syscalls) network(p *process.Process, req engine.SyscallRequest) ([]uint64, process.BlockReason) {
	var op wire.NetworkOperation
	switch req.Number {
	case SysSockOpen:
		op = wire.NetworkOperation{Kind: wire.NetOpListen, LocalPort: uint16(req.Args[0])}
	case SysSockConnect:
		op = wire.NetworkOperation{Kind: wire.NetOpConnect, RemotePort: uint16(req.Args[0])}
	case SysSockAccept:
		op = wire.NetworkOperation{Kind: wire.NetOpAccept, LocalPort: uint16(req.Args[0])}
	case SysSockSend:
		op = wire.NetworkOperation{Kind: wire.NetOpSend, LocalPort: uint16(req.Args[0])}
	case SysSockRecv:
		op = wire.NetworkOperation{Kind: wire.NetOpRecv, LocalPort: uint16(req.Args[0])}
	case SysSockClose:
		op = wire.NetworkOperation{Kind: wire.NetOpClose, LocalPort: uint16(req.Args[0])}
	}
	p.WaitingPort = op.LocalPort
	s.netOut <- op
	return nil, process.BlockNetworkIO
}

// NetworkResultWords converts a coordinator-resolved NetworkOperation
// into the result words the blocked network syscall that requested it
// resumes with, once Scheduler.DeliverNetworkResult injects them.
func NetworkResultWords(op wire.NetworkOperation) []uint64 {
	errno := uint64(errnoBadFD)
	if op.Status == wire.StatusSuccess {
		errno = errnoSuccess
	}
	switch op.Kind {
	case wire.NetOpListen, wire.NetOpConnect, wire.NetOpAccept:
		return []uint64{errno, uint64(op.NewPort)}
	case wire.NetOpRecv:
		// The actual byte copy into guest memory happens the same way
		// fdRead's does; here we only report how much arrived.
		return []uint64{errno, uint64(len(op.RecvData))}
	default:
		return []uint64{errno}
	}
}
