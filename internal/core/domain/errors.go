package domain

import "errors"

var (
	ErrUnsupportedVersion = errors.New("unsupported platform version")
	// ErrUnsupportedAgentVersion means the remote agent is older than this client supports.
	ErrUnsupportedAgentVersion = versionError("UNSUPPORTED_AGENT_VERSION")
	// ErrUnsupportedSDKVersion means this client is older than the remote agent requires.
	ErrUnsupportedSDKVersion = versionError("UNSUPPORTED_SDK_VERSION")

	ErrMalformedAction = errors.New("malformed action payload")
	ErrNotConnected    = errors.New("platform not connected")
	ErrUnknownThing    = errors.New("unknown thing")
)

type unsupportedVersionError struct {
	kind string
}

func versionError(kind string) error {
	return &unsupportedVersionError{kind: kind}
}

func (e *unsupportedVersionError) Error() string {
	return e.kind
}

func (e *unsupportedVersionError) Unwrap() error {
	return ErrUnsupportedVersion
}
