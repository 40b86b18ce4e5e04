package app

import "strings"

// Operation tracks the CLI command being run. It lives in memory with ID=0
// until a command that changes stored data persists it to the health
// database's operation log.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// mutatingCall reports whether a bridge method writes health data or grants.
func mutatingCall(method string) bool {
	return strings.HasPrefix(method, "write") || method == "requestPermissions"
}
