package jsonrpc

// Error codes defined by JSON-RPC 2.0. Codes from -32000 to -32099 are left
// to servers.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerErrorMin = -32099
	CodeServerErrorMax = -32000
)

// IsServerError reports whether code lies in the range reserved for
// implementation-defined server errors.
func IsServerError(code int) bool {
	return code >= CodeServerErrorMin && code <= CodeServerErrorMax
}
