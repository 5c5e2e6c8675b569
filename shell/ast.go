package shell

// RedirKind is the flavor of I/O redirection attached to a simple command.
type RedirKind int

const (
	RedirTruncate    RedirKind = iota // >
	RedirAppend                       // >>
	RedirInput                        // <
	RedirErrTruncate                  // 2>
	RedirErrAppend                    // 2>>
	RedirBoth                         // &>
)

// Redirect is one `op target` pair attached to a SimpleCommand.
type Redirect struct {
	Kind   RedirKind
	Target string
}

// SimpleCommand is a single `name arg1 arg2 ... [redirects]` invocation.
// Name and Args are raw, unexpanded words; expansion happens at execution
// time against the live environment.
type SimpleCommand struct {
	Name      string
	Args      []string
	Redirects []Redirect
}

// Pipeline is `cmd | cmd | ...`, optionally backgrounded with a trailing
// `&`.
type Pipeline struct {
	Stages     []*SimpleCommand
	Background bool
}

// AndOrOp joins two pipelines with short-circuit semantics.
type AndOrOp int

const (
	OpAnd AndOrOp = iota // &&
	OpOr                 // ||
)

// AndOrNode is a single `left OP right` link in an and-or list; Next is
// nil at the end of the chain.
type AndOrNode struct {
	Pipeline *Pipeline
	Op       AndOrOp // the operator joining Pipeline to Next; ignored if Next == nil
	Next     *AndOrNode
}

// Sequence is one or more and-or lists separated by `;`, the top-level
// parse result for one line of input (or one line of a script).
type Sequence struct {
	Lists []*AndOrNode
}
