package instrumentation

import "strings"

// SenderDomain reduces a sender address to its domain so it can be used as a
// metric label.
//
//	SenderDomain("billing@supplier.example")  // "supplier.example"
//	SenderDomain("invalid")                   // "unknown"
//	SenderDomain("")                          // "unknown"
func SenderDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// Google API operation types.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationCreate   = "create"
	OperationUpload   = "upload"
	OperationDownload = "download"
	OperationUpdate   = "update"
	OperationAppend   = "append"
	OperationDelete   = "delete"
	OperationSearch   = "search"
	OperationExtract  = "extract"
)
