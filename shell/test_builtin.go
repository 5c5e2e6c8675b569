package shell

import (
	"strconv"

	"github.com/lifosh/lifosh/command"
	"github.com/lifosh/lifosh/vfs"
)

// builtinTest implements the common subset of POSIX test(1): unary file
// tests, string comparisons/emptiness checks, numeric comparisons, boolean
// negation, and the -a/-o connectives. An unrecognized expression reports
// false (exit 1) rather than erroring, matching test's own leniency.
func (ip *Interpreter) builtinTest(ctx *command.Context) (int, error) {
	if evalTest(ip, ctx.Cwd, ctx.Args) {
		return 0, nil
	}
	return 1, nil
}

// builtinBracketTest is `[ ... ]`; it requires a trailing `]` argument.
func (ip *Interpreter) builtinBracketTest(ctx *command.Context) (int, error) {
	args := ctx.Args
	if len(args) == 0 || args[len(args)-1] != "]" {
		return 2, nil
	}
	if evalTest(ip, ctx.Cwd, args[:len(args)-1]) {
		return 0, nil
	}
	return 1, nil
}

func evalTest(ip *Interpreter, cwd string, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if len(args) == 1 {
		return args[0] != ""
	}
	if args[0] == "!" {
		return !evalTest(ip, cwd, args[1:])
	}

	if len(args) == 3 {
		if args[1] == "-a" {
			return evalTest(ip, cwd, args[:1]) && evalTest(ip, cwd, args[2:])
		}
		if args[1] == "-o" {
			return evalTest(ip, cwd, args[:1]) || evalTest(ip, cwd, args[2:])
		}
		return evalBinary(ip, cwd, args[0], args[1], args[2])
	}

	if len(args) == 2 {
		return evalUnary(ip, cwd, args[0], args[1])
	}

	return false
}

func evalUnary(ip *Interpreter, cwd, op, arg string) bool {
	path := resolvePath(cwd, arg)
	switch op {
	case "-z":
		return arg == ""
	case "-n":
		return arg != ""
	case "-e":
		return ip.VFS.Exists(path)
	case "-f":
		st, err := ip.VFS.Stat(path)
		return err == nil && st.Type != vfs.TypeDirectory
	case "-d":
		st, err := ip.VFS.Stat(path)
		return err == nil && st.Type == vfs.TypeDirectory
	case "-r", "-w", "-x":
		return ip.VFS.Exists(path)
	case "-s":
		data, err := ip.VFS.ReadFile(path)
		return err == nil && len(data) > 0
	default:
		return false
	}
}

func evalBinary(ip *Interpreter, cwd, lhs, op, rhs string) bool {
	switch op {
	case "=", "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		l, lerr := strconv.Atoi(lhs)
		r, rerr := strconv.Atoi(rhs)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case "-eq":
			return l == r
		case "-ne":
			return l != r
		case "-lt":
			return l < r
		case "-le":
			return l <= r
		case "-gt":
			return l > r
		case "-ge":
			return l >= r
		}
	}
	return false
}
