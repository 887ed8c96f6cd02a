package engine

import (
	"fmt"
	"strconv"
	"strings"
)

func parseMockProgram(module []byte) ([]mockOp, error) {
	var ops []mockOp
	for _, line := range strings.Split(string(module), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		args := make([]uint64, 0, len(fields)-1)
		for _, f := range fields[1:] {
			n, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("engine: parse mock program: %w", err)
			}
			args = append(args, n)
		}
		switch fields[0] {
		case "syscall":
			ops = append(ops, mockOp{kind: opSyscall, args: args})
		case "spin":
			ops = append(ops, mockOp{kind: opSpin, args: args})
		case "exit":
			ops = append(ops, mockOp{kind: opExit, args: args})
		default:
			return nil, fmt.Errorf("engine: unknown mock opcode %q", fields[0])
		}
	}
	return ops, nil
}
