package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// IO
	IOLoadFileError Code = 1001

	// Syntax errors reported by the parser.
	SynError Code = 2001

	// Type checking
	TypeError         Code = 3001
	TypeImportCycle   Code = 3002
	TypeSoftError     Code = 3003
	TypeMissingImport Code = 3004

	// Lint findings; the analyzer name is part of the message.
	LintFinding Code = 4001

	// Engine level failures, surfaced as diagnostics.
	EngineCheckerFault    Code = 9001
	EngineWorkerLost      Code = 9002
	EngineTimeoutExceeded Code = 9003
)

var codeNames = map[Code]string{
	UnknownCode:           "Unknown",
	IOLoadFileError:       "IOLoadFileError",
	SynError:              "SyntaxError",
	TypeError:             "TypeError",
	TypeImportCycle:       "ImportCycle",
	TypeSoftError:         "SoftTypeError",
	TypeMissingImport:     "MissingImport",
	LintFinding:           "LintFinding",
	EngineCheckerFault:    "CheckerFault",
	EngineWorkerLost:      "WorkerLost",
	EngineTimeoutExceeded: "TimeoutExceeded",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// ID returns the stable short identifier, e.g. "SC3001".
func (c Code) ID() string {
	return fmt.Sprintf("SC%04d", uint16(c))
}
