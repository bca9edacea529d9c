package device

import "errors"

var (
	// ErrTransportUnavailable reports that every allowed probe came up empty
	// or failed to open. Recoverable: the manager stays in the disconnected
	// state and probing can be retried.
	ErrTransportUnavailable = errors.New("device: no transport available")

	// ErrConnectTimeout reports that the wireless handshake exceeded its
	// bound. Recoverable in the same way as ErrTransportUnavailable.
	ErrConnectTimeout = errors.New("device: wireless connect timed out")

	// ErrNotConnected reports a write or query attempted with no live
	// connection.
	ErrNotConnected = errors.New("device: not connected")

	// ErrProtocolTimeout reports a correlated query that got no reply in
	// time. The caller treats the answer as unknown.
	ErrProtocolTimeout = errors.New("device: no reply before timeout")

	// ErrQueryOutstanding reports a correlated query issued while another is
	// still awaiting its reply. The protocol supports a single outstanding
	// request; a second one is a programming error and fails fast.
	ErrQueryOutstanding = errors.New("device: another query is outstanding")

	// ErrShutDown reports use of a manager after Shutdown.
	ErrShutDown = errors.New("device: manager is shut down")

	// ErrSelectionAborted reports that the operator declined to pick one of
	// several wireless candidates.
	ErrSelectionAborted = errors.New("device: candidate selection aborted")
)
