package scanner

import "errors"

var (
	errBinaryFile  = errors.New("file appears to be binary (NUL byte in first 512 bytes)")
	errInvalidUTF8 = errors.New("file is not valid UTF-8")
)

// IsBinaryFileError reports whether err is the binary-file rejection.
func IsBinaryFileError(err error) bool { return err == errBinaryFile }

// IsInvalidUTF8Error reports whether err is the invalid-UTF-8 rejection.
func IsInvalidUTF8Error(err error) bool { return err == errInvalidUTF8 }
