package status

import "errors"

// HTTPError is the error every server-side failure is reported with. The code drives
// the response status, the message is echoed in X-Error.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

// CodeOf extracts the status code carried by err. Errors which aren't HTTPError are
// considered internal server errors.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	return InternalServerError
}

var (
	ErrBadRequest                   = NewError(BadRequest, "bad request")
	ErrMalformedHead                = NewError(BadRequest, "malformed request head")
	ErrMissingHost                  = NewError(BadRequest, "missing Host header")
	ErrURLDecoding                  = NewError(BadRequest, "invalid urlencoded sequence")
	ErrBadChunk                     = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBadMultipart                 = NewError(BadRequest, "malformed multipart body")
	ErrBadHandshake                 = NewError(BadRequest, "bad websocket handshake")
	ErrUnauthorized                 = NewError(Unauthorized, "unauthorized")
	ErrForbidden                    = NewError(Forbidden, "forbidden")
	ErrWebSocketForbidden           = NewError(Forbidden, "websocket is not allowed on this route")
	ErrNotFound                     = NewError(NotFound, "not found")
	ErrMethodNotAllowed             = NewError(MethodNotAllowed, "method not allowed")
	ErrRequestTimeout               = NewError(RequestTimeout, "request timeout")
	ErrLengthRequired               = NewError(LengthRequired, "length required")
	ErrBodyTooLarge                 = NewError(RequestEntityTooLarge, "request body is too large")
	ErrURITooLong                   = NewError(RequestURITooLong, "request URI too long")
	ErrUnsupportedEncoding          = NewError(UnsupportedMediaType, "encoding is not supported")
	ErrUnsupportedMediaType         = NewError(UnsupportedMediaType, "unsupported media type")
	ErrRequestedRangeNotSatisfiable = NewError(RequestedRangeNotSatisfiable, "requested range is not satisfiable")
	ErrMisdirectedRequest           = NewError(MisdirectedRequest, "misdirected request")
	ErrUnprocessableEntity          = NewError(UnprocessableEntity, "unprocessable entity")
	ErrUpgradeRequired              = NewError(UpgradeRequired, "upgrade required")
	ErrHeaderFieldsTooLarge         = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders               = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrInternalServerError          = NewError(InternalServerError, "internal server error")
	ErrMethodNotImplemented         = NewError(NotImplemented, "request method is not supported")
	ErrTransferEncoding             = NewError(NotImplemented, "transfer encoding is not supported")
	ErrHTTPVersionNotSupported      = NewError(HTTPVersionNotSupported, "HTTP version not supported")
)
