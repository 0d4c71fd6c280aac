package validate

type Kind int

const (
	FileTooLarge Kind = iota + 1
	UnsupportedFormat
	ImageTooSmall
	UnsupportedColorMode
	CorruptImage
	InvalidParameter
)

func (k Kind) String() string {
	switch k {
	case FileTooLarge:
		return "FileTooLarge"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case ImageTooSmall:
		return "ImageTooSmall"
	case UnsupportedColorMode:
		return "UnsupportedColorMode"
	case CorruptImage:
		return "CorruptImage"
	case InvalidParameter:
		return "InvalidParameter"
	default:
		return "ValidationError"
	}
}

type Error struct {
	Kind Kind
	Msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrFileTooLarge         = &Error{Kind: FileTooLarge}
	ErrUnsupportedFormat    = &Error{Kind: UnsupportedFormat}
	ErrImageTooSmall        = &Error{Kind: ImageTooSmall}
	ErrUnsupportedColorMode = &Error{Kind: UnsupportedColorMode}
	ErrCorruptImage         = &Error{Kind: CorruptImage}
	ErrInvalidParameter     = &Error{Kind: InvalidParameter}
)
