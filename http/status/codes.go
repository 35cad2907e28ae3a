package status

import "strconv"

type (
	Code   uint16
	Status string
)

// HTTP status codes as registered with IANA.
// See: https://www.iana.org/assignments/http-status-codes/http-status-codes.xhtml
const (
	Continue           Code = 100
	SwitchingProtocols Code = 101

	OK             Code = 200
	Created        Code = 201
	Accepted       Code = 202
	NoContent      Code = 204
	PartialContent Code = 206

	MovedPermanently  Code = 301
	Found             Code = 302
	SeeOther          Code = 303
	NotModified       Code = 304
	TemporaryRedirect Code = 307
	PermanentRedirect Code = 308

	BadRequest                   Code = 400
	Unauthorized                 Code = 401
	Forbidden                    Code = 403
	NotFound                     Code = 404
	MethodNotAllowed             Code = 405
	NotAcceptable                Code = 406
	RequestTimeout               Code = 408
	Conflict                     Code = 409
	Gone                         Code = 410
	LengthRequired               Code = 411
	PreconditionFailed           Code = 412
	RequestEntityTooLarge        Code = 413
	RequestURITooLong            Code = 414
	UnsupportedMediaType         Code = 415
	RequestedRangeNotSatisfiable Code = 416
	ExpectationFailed            Code = 417
	MisdirectedRequest           Code = 421
	UnprocessableEntity          Code = 422
	UpgradeRequired              Code = 426
	TooManyRequests              Code = 429
	RequestHeaderFieldsTooLarge  Code = 431

	InternalServerError     Code = 500
	NotImplemented          Code = 501
	BadGateway              Code = 502
	ServiceUnavailable      Code = 503
	GatewayTimeout          Code = 504
	HTTPVersionNotSupported Code = 505
)

var texts = map[Code]Status{
	Continue:                     "Continue",
	SwitchingProtocols:           "Switching Protocols",
	OK:                           "OK",
	Created:                      "Created",
	Accepted:                     "Accepted",
	NoContent:                    "No Content",
	PartialContent:               "Partial Content",
	MovedPermanently:             "Moved Permanently",
	Found:                        "Found",
	SeeOther:                     "See Other",
	NotModified:                  "Not Modified",
	TemporaryRedirect:            "Temporary Redirect",
	PermanentRedirect:            "Permanent Redirect",
	BadRequest:                   "Bad Request",
	Unauthorized:                 "Unauthorized",
	Forbidden:                    "Forbidden",
	NotFound:                     "Not Found",
	MethodNotAllowed:             "Method Not Allowed",
	NotAcceptable:                "Not Acceptable",
	RequestTimeout:               "Request Timeout",
	Conflict:                     "Conflict",
	Gone:                         "Gone",
	LengthRequired:               "Length Required",
	PreconditionFailed:           "Precondition Failed",
	RequestEntityTooLarge:        "Request Entity Too Large",
	RequestURITooLong:            "Request URI Too Long",
	UnsupportedMediaType:         "Unsupported Media Type",
	RequestedRangeNotSatisfiable: "Requested Range Not Satisfiable",
	ExpectationFailed:            "Expectation Failed",
	MisdirectedRequest:           "Misdirected Request",
	UnprocessableEntity:          "Unprocessable Entity",
	UpgradeRequired:              "Upgrade Required",
	TooManyRequests:              "Too Many Requests",
	RequestHeaderFieldsTooLarge:  "Request Header Fields Too Large",
	InternalServerError:          "Internal Server Error",
	NotImplemented:               "Not Implemented",
	BadGateway:                   "Bad Gateway",
	ServiceUnavailable:           "Service Unavailable",
	GatewayTimeout:               "Gateway Timeout",
	HTTPVersionNotSupported:      "HTTP Version Not Supported",
}

// KnownCodes lists every code the package has a text for.
var KnownCodes = func() (codes []Code) {
	for code := range texts {
		codes = append(codes, code)
	}

	return codes
}()

// Text returns a text for the HTTP status code. Unknown codes produce a generic
// placeholder, so the status line is always well-formed.
func Text(code Code) Status {
	if text, ok := texts[code]; ok {
		return text
	}

	return "Unknown Status Code"
}

// StringCode returns the code in its decimal form.
func StringCode(code Code) string {
	return strconv.Itoa(int(code))
}

// FromBytes parses a 3-digit status code. Zero is returned on malformed input.
func FromBytes(raw []byte) Code {
	if len(raw) != 3 {
		return 0
	}

	var code Code
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}

		code = code*10 + Code(c-'0')
	}

	return code
}
