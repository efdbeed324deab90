package symtab

import "errors"

// Build-time errors are fatal to the build run. ErrNotFound is the only
// query-time error and callers normally see it as an empty result.
var (
	// ErrDuplicateSymbol is returned when a (name, kind) pair is inserted
	// again with conflicting metadata.
	ErrDuplicateSymbol = errors.New("duplicate symbol")

	// ErrUnknownSymbol is returned when a location or edge references an ID
	// that is not in the table.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrMultipleContainers is returned when a symbol would get a second,
	// different containment parent.
	ErrMultipleContainers = errors.New("multiple containers")

	// ErrSchemaViolation wraps any broken table invariant.
	ErrSchemaViolation = errors.New("schema violation")

	ErrNotFound = errors.New("not found")

	// ErrFrozen is returned by mutators once the table has been frozen.
	ErrFrozen = errors.New("symbol table is frozen")
)
