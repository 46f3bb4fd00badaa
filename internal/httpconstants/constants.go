package httpconstants

const HTTP_VER = "HTTP/1.1"
const CRLF = "\r\n"
const HEADER_END = CRLF + CRLF

const METHOD_GET = "GET"
const METHOD_PUT = "PUT"

const STATUS_200 = 200
const STATUS_201 = 201
const STATUS_403 = 403
const STATUS_404 = 404
const STATUS_405 = 405
const STATUS_500 = 500

const REASON_200 = "OK"
const REASON_201 = "Content created"
const REASON_403 = "Forbidden"
const REASON_404 = "Not Found"
const REASON_405 = "Method Not Allowed"
const REASON_500 = "Server Error"

const HEADER_HOST = "Host"
const HEADER_DATE = "Date"
const HEADER_SERVER = "Server"
const HEADER_CONNECTION = "Connection"
const HEADER_CONTENT_LENGTH = "Content-Length"
const HEADER_ALLOW = "Allow"

const CONNECTION_CLOSE = "close"
const ALLOWED_METHODS = METHOD_GET + ", " + METHOD_PUT

// DATE_FORMAT is RFC 1123 with a fixed GMT zone.
const DATE_FORMAT = "Mon, 02 Jan 2006 15:04:05 GMT"

func ReasonPhrase(status int) string {
	switch status {
	case STATUS_200:
		return REASON_200
	case STATUS_201:
		return REASON_201
	case STATUS_403:
		return REASON_403
	case STATUS_404:
		return REASON_404
	case STATUS_405:
		return REASON_405
	case STATUS_500:
		return REASON_500
	}
	return ""
}
