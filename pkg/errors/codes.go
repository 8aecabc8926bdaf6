package errors

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidTarget    Code = "INVALID_TARGET"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeAlreadyResolved  Code = "ALREADY_RESOLVED"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodePartialWrite     Code = "PARTIAL_WRITE"
	CodeCancelled        Code = "CANCELLED"
)
