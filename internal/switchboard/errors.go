package switchboard

import "errors"

// Sentinel errors for the per-message rejection cases. Callers outside
// this package can match them with errors.Is; inside the package they
// drive which wire.Err is sent back to the offending connection.
var (
	ErrVerifyFailed          = errors.New("switchboard: signature verification failed")
	ErrSignerMismatch        = errors.New("switchboard: outer signature source does not match payload agent")
	ErrSpaceMismatch         = errors.New("switchboard: payload space/agent does not match connection binding")
	ErrMessageWhileInLimbo   = errors.New("switchboard: message received before JoinSpace")
	ErrUnvalidatedProxyAgent = errors.New("switchboard: target agent not present in space")
)
