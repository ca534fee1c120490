package http10

import (
	"fmt"
	"io"
	"maps"
	"time"
)

// write composes an HTTP/1.0 response including Content-Length and
// Connection: close. Extra headers (trace ids, worker ids, Retry-After)
// are merged over the standard set.
func write(w io.Writer, status int, contentType string, body string, extra map[string]string) {
	headers := map[string]string{
		"Date":           time.Now().UTC().Format(time.RFC1123),
		"Content-Type":   contentType,
		"Content-Length": fmt.Sprintf("%d", len(body)),
		"Connection":     "close",
		"Server":         "taskstation/1.0",
	}
	if extra != nil {
		maps.Copy(headers, extra)
	}

	io.WriteString(w, fmt.Sprintf("HTTP/1.0 %d %s\r\n", status, statusText(status)))
	for k, v := range headers {
		io.WriteString(w, fmt.Sprintf("%s: %s\r\n", k, v))
	}
	io.WriteString(w, "\r\n")
	io.WriteString(w, body)
}

// WritePlainH writes a plain-text response with extra headers.
func WritePlainH(w io.Writer, status int, body string, extra map[string]string) {
	write(w, status, "text/plain; charset=utf-8", body, extra)
}

// WriteJSONH writes a JSON response (body already serialized) with extra
// headers.
func WriteJSONH(w io.Writer, status int, json string, extra map[string]string) {
	write(w, status, "application/json", json, extra)
}

// WriteErrorJSON serializes the uniform error payload
// {"error":"<code>","detail":"<detail>"} at the given status.
func WriteErrorJSON(w io.Writer, status int, code, detail string, extra map[string]string) {
	payload := fmt.Sprintf("{\"error\":\"%s\",\"detail\":\"%s\"}", code, escapeJSON(detail))
	WriteJSONH(w, status, payload, extra)
}

// escapeJSON escapes double quotes, backslashes and control characters
// in detail to keep the payload valid JSON without pulling in a full
// encoder for a two-field object.
func escapeJSON(s string) string {
	out := ""
	for _, r := range s {
		switch {
		case r == '"':
			out += "\\\""
		case r == '\\':
			out += "\\\\"
		case r < 0x20:
			out += fmt.Sprintf("\\u%04x", r)
		default:
			out += string(r)
		}
	}
	return out
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 409:
		return "Conflict"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 503:
		return "Service Unavailable"
	default:
		return "OK"
	}
}
