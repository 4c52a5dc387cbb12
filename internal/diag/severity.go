package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevWarning is for findings that do not block the build.
	SevWarning Severity = iota + 1
	// SevError is for findings that block the build.
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Source identifies the engine that produced a diagnostic.
type Source uint8

const (
	// SourceTypeCheck marks findings of the type checker (and synthetic
	// engine diagnostics).
	SourceTypeCheck Source = iota + 1
	// SourceLint marks findings of the lint pass.
	SourceLint
)

func (s Source) String() string {
	switch s {
	case SourceTypeCheck:
		return "typecheck"
	case SourceLint:
		return "lint"
	}
	return "unknown"
}
