package config

// Error messages returned in HTTP and MCP responses
const (
	// ErrMsgSessionNotFound is returned for unknown session ids
	ErrMsgSessionNotFound = "Session not found"
	// ErrMsgMessageRequired is returned when a send has no message text
	ErrMsgMessageRequired = "Message is required"
	// ErrMsgSessionBusy is returned when a turn is already in flight
	ErrMsgSessionBusy = "Session is processing another message"
	// ErrMsgCreateSession is returned when session construction fails
	ErrMsgCreateSession = "Failed to create session"
	// ErrMsgProcessMessage is returned when the engine fails a turn
	ErrMsgProcessMessage = "Failed to process message"
	// ErrMsgInvalidBody is returned for malformed JSON bodies
	ErrMsgInvalidBody = "Invalid request body"
	// ErrMsgInvalidPagination is returned for malformed offset/limit values
	ErrMsgInvalidPagination = "offset and limit must be non-negative integers"
	// ErrMsgBodyTooLarge is returned when a body exceeds server.maxBodyBytes
	ErrMsgBodyTooLarge = "Request body too large"
	// ErrMsgInternal is returned for recovered panics
	ErrMsgInternal = "Internal server error"
)
