// Package errs defines the failure taxonomy shared by every try-on component.
//
// Components return *Error values carrying a Kind. The session controller
// maps the kind of any failure onto its Error state, so the kind must survive
// wrapping: KindOf walks the whole chain and reports the outermost kind.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure. A Kind is itself an error so it can be used as a
// sentinel with errors.Is.
type Kind uint8

const (
	Unknown Kind = iota
	InvalidLandmarks
	InvalidImage
	AllocationFailure
	AssetLoadFailed
	UnsupportedAssetFormat
	SceneDisposed
	DetectionError
	FetchError
	InvalidState
	SessionDisposed
)

var kindNames = [...]string{
	Unknown:                "Unknown",
	InvalidLandmarks:       "InvalidLandmarks",
	InvalidImage:           "InvalidImage",
	AllocationFailure:      "AllocationFailure",
	AssetLoadFailed:        "AssetLoadFailed",
	UnsupportedAssetFormat: "UnsupportedAssetFormat",
	SceneDisposed:          "SceneDisposed",
	DetectionError:         "DetectionError",
	FetchError:             "FetchError",
	InvalidState:           "InvalidState",
	SessionDisposed:        "SessionDisposed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a classified failure. Op names the operation that failed
// ("geometry.compute", "scene.load"), Msg is a human-readable detail.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op
	if e.Msg != "" {
		if s != "" {
			s += ": "
		}
		s += e.Msg
	}
	if e.Err != nil {
		if s != "" {
			s += ": "
		}
		s += e.Err.Error()
	}
	if s == "" {
		return e.Kind.String()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: errors.WithStack(err)}
}

// Wrapf is Wrap with formatting.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	return Wrap(kind, op, err, fmt.Sprintf(format, args...))
}

// Ensure passes through errors that already carry a kind (adding op as
// context) and classifies the rest under kind.
func Ensure(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return errors.WithMessage(err, op)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the outermost Kind found in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// Message returns the human-readable part of err suitable for display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
