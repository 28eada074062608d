package ringtcp

import "github.com/ringtcp/ringtcp/internal/interfaces"

// Logger is the public alias of the internal logging surface. Options.Logger
// and the reactor/acceptor configs take this type directly; *logging.Logger
// satisfies it, as does any type with matching Printf/Debugf methods.
type Logger = interfaces.Logger
