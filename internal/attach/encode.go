package attach

import (
	"net/url"
	"unicode/utf8"
)

// EncodeArg makes a file path safe to embed in the agent argument string,
// so spaces and reserved characters (including ';') survive the trip.
//
// The encoding is form-style percent encoding of the UTF-8 bytes. A path
// that is not valid UTF-8 cannot be represented in that charset and is
// returned unmodified.
func EncodeArg(path string) string {
	if !utf8.ValidString(path) {
		return path
	}
	return url.QueryEscape(path)
}

// DecodeArg reverses EncodeArg. Input that does not decode is returned as is.
func DecodeArg(arg string) string {
	decoded, err := url.QueryUnescape(arg)
	if err != nil {
		return arg
	}
	return decoded
}
