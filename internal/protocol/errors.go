package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Match routing/state.
	ErrMatchNotFound = "E_MATCH_NOT_FOUND"
	ErrMatchFull     = "E_MATCH_FULL"
	ErrMatchEnded    = "E_MATCH_ENDED"

	// Command layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrUnreachable   = "E_UNREACHABLE"
	ErrLimit         = "E_LIMIT"
	ErrBlocked       = "E_BLOCKED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrMatchNotFound:   {},
	ErrMatchFull:       {},
	ErrMatchEnded:      {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrNoResource:      {},
	ErrInvalidTarget:   {},
	ErrUnreachable:     {},
	ErrLimit:           {},
	ErrBlocked:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
