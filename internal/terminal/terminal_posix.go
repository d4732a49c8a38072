package terminal

const (
	// PosixControlMoveCursorHome moves cursor to the first column
	PosixControlMoveCursorHome = "\r"
	// PosixControlClearLine clears the current line
	PosixControlClearLine = "\x1b[2K"
)
