/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package protocol

// Version identifies the application protocol spoken on a connection.
type Version uint8

const (
	VersionUnknown Version = iota
	VersionHTTP10
	VersionHTTP11
	VersionHTTP2
	VersionWebsocket
)

const (
	alpnHTTP11 = "http/1.1"
	alpnHTTP2  = "h2"
)

func (v Version) String() string {
	switch v {
	case VersionHTTP10:
		return "HTTP/1.0"
	case VersionHTTP11:
		return "HTTP/1.1"
	case VersionHTTP2:
		return "HTTP/2"
	case VersionWebsocket:
		return "WebSocket"
	}

	return "unknown"
}

// ALPN returns the ALPN token advertised for this version, or an empty string
// when the version has no token (WebSocket rides on http/1.1).
func (v Version) ALPN() string {
	switch v {
	case VersionHTTP10, VersionHTTP11, VersionWebsocket:
		return alpnHTTP11
	case VersionHTTP2:
		return alpnHTTP2
	}

	return ""
}

// ParseALPN maps a negotiated ALPN token back to a version.
func ParseALPN(proto string) Version {
	switch proto {
	case alpnHTTP2:
		return VersionHTTP2
	case alpnHTTP11, "":
		return VersionHTTP11
	}

	return VersionUnknown
}
