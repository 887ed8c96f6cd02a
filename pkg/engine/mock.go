package engine

// MockBackend instantiates MockMachines from a tiny scripted
// instruction set, used by the scheduler and runtime tests in place of
// a real bytecode interpreter. A module image is a sequence of
// newline-separated opcodes: "syscall <n> <args...>", "spin <fuel>",
// "exit <code>".
type MockBackend struct{}

func (MockBackend) Name() string { return "mock" }

func (MockBackend) Instantiate(module []byte) (Machine, error) {
	ops, err := parseMockProgram(module)
	if err != nil {
		return nil, err
	}
	return &MockMachine{ops: ops, memory: make([]byte, 64*1024)}, nil
}

// MockMachine is a minimal, fully deterministic Machine used for
// testing the scheduler and syscall interception without a real
// bytecode engine.
type MockMachine struct {
	ops      []mockOp
	pc       int
	spun     uint64
	exitCode int32
	lastReq  SyscallRequest
	finished bool
	memory   []byte
}

type mockOpKind uint8

const (
	opSyscall mockOpKind = iota
	opSpin
	opExit
)

type mockOp struct {
	kind mockOpKind
	args []uint64
}

func (m *MockMachine) Run(fuel uint64) (Trap, error) {
	for fuel > 0 {
		if m.pc >= len(m.ops) {
			m.finished = true
			return TrapFinished, nil
		}
		op := m.ops[m.pc]
		switch op.kind {
		case opSyscall:
			m.pc++
			m.lastReq = SyscallRequest{Number: int(op.args[0]), Args: op.args[1:]}
			return TrapSyscall, nil
		case opSpin:
			cost := op.args[0]
			if cost > fuel {
				op.args[0] = cost - fuel
				m.ops[m.pc] = op
				return TrapFuelExhausted, nil
			}
			fuel -= cost
			m.pc++
		case opExit:
			m.exitCode = int32(op.args[0])
			m.finished = true
			return TrapFinished, nil
		}
	}
	return TrapFuelExhausted, nil
}

func (m *MockMachine) Syscall() SyscallRequest { return m.lastReq }

func (m *MockMachine) SetSyscallResult(results []uint64) {
	// The mock program does not consume syscall results; real
	// backends would write them into guest memory/registers here.
}

func (m *MockMachine) ExitCode() int32 { return m.exitCode }

func (m *MockMachine) Memory() []byte { return m.memory }

func (m *MockMachine) Close() error { return nil }
