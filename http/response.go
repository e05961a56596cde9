package http

import (
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
	"github.com/zavakid/tiny-http/http/status"
	"github.com/zavakid/tiny-http/internal/response"
)

const (
	mimeJSON        = "application/json"
	defaultFileMIME = "application/octet-stream"
)

type Response struct {
	fields *response.Fields
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK and
// a plain-text content type.
func NewResponse() *Response {
	return &Response{response.New()}
}

// Code sets a Response code and a corresponding status.
// In case of unknown code, "Unknown Status Code" will be set as a status
// code. In this case you should call Status explicitly
func (r *Response) Code(code status.Code) *Response {
	r.fields.Code = code
	return r
}

// Status sets a custom status text.
func (r *Response) Status(status status.Status) *Response {
	r.fields.Status = status
	return r
}

// ContentType sets a custom Content-Type header value.
func (r *Response) ContentType(value string) *Response {
	r.fields.ContentType = value
	return r
}

// Header adds header values to a key. In case it already exists the values are appended.
func (r *Response) Header(key string, values ...string) *Response {
	if strcomp.EqualFold(key, "content-type") {
		if len(values) > 0 {
			r.ContentType(values[len(values)-1])
		}

		return r
	}

	for _, value := range values {
		r.fields.Headers.Add(key, value)
	}

	return r
}

// Headers merges passed headers into the Response.
func (r *Response) Headers(headers map[string][]string) *Response {
	for k, v := range headers {
		r.Header(k, v...)
	}

	return r
}

// String sets the response's body to the passed string
func (r *Response) String(body string) *Response {
	return r.Bytes(uf.S2B(body))
}

// Bytes sets the response's body to passed slice WITHOUT COPYING. Changing
// the passed slice later will affect the response by itself
func (r *Response) Bytes(body []byte) *Response {
	r.fields.Body = body
	r.fields.Stream = nil
	return r
}

// Write implements io.Writer interface. It always returns n=len(b) and err=nil
func (r *Response) Write(b []byte) (n int, err error) {
	r.fields.Body = append(r.fields.Body, b...)
	return len(b), nil
}

// Stream sets the body to be read from the reader. Size must be the exact length of the
// stream, or -1 if it's unknown, in which case the body is sent using chunked transfer
// encoding. If the reader is also an io.Closer, it's closed as soon as the response is written.
func (r *Response) Stream(reader io.Reader, size int64) *Response {
	r.fields.Stream = reader
	r.fields.StreamSize = max(size, -1)
	r.fields.Body = nil
	return r
}

// NoCompression disables compressing the response body, regardless of what the client accepts.
func (r *Response) NoCompression() *Response {
	r.fields.NoCompression = true
	return r
}

// TryFile opens a file for reading and streams it as the response body.
func (r *Response) TryFile(path string) (*Response, error) {
	fd, err := os.Open(path)
	if err != nil {
		return r, status.ErrNotFound
	}

	stat, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return r, err
	}

	if stat.IsDir() {
		_ = fd.Close()
		return r, status.ErrNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if len(contentType) == 0 {
		contentType = defaultFileMIME
	}

	return r.ContentType(contentType).Stream(fd, stat.Size()), nil
}

// File does the same as TryFile does, except the error is implicitly passed to Error.
func (r *Response) File(path string) *Response {
	resp, err := r.TryFile(path)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// TryJSON serializes the model into the body.
func (r *Response) TryJSON(model any) (*Response, error) {
	r.fields.Body = r.fields.Body[:0]
	r.fields.Stream = nil
	stream := json.ConfigDefault.BorrowStream(r)
	stream.WriteVal(model)
	err := stream.Flush()
	json.ConfigDefault.ReturnStream(stream)

	return r.ContentType(mimeJSON), err
}

// JSON does the same as TryJSON does, except returned error is being implicitly wrapped
// by Error
func (r *Response) JSON(model any) *Response {
	resp, err := r.TryJSON(model)
	if err != nil {
		return r.Error(err)
	}

	return resp
}

// Error turns the response into an error response. The code is taken from status.HTTPError, if
// the error is one, otherwise 500 Internal Server Error is used. If nil is passed, nothing
// happens.
func (r *Response) Error(err error) *Response {
	if err == nil {
		return r
	}

	code := status.CodeOf(err)
	message := err.Error()
	if code == status.InternalServerError && status.KindOf(err) == status.HandlerFailure {
		// internal details must not leak to the client
		message = string(status.Text(code))
	}

	return r.
		Code(code).
		ContentType(response.DefaultContentType).
		String(message)
}

// Reveal returns a struct with values, filled by builder. Used mostly in internal purposes
func (r *Response) Reveal() *response.Fields {
	return r.fields
}

// Clear discards everything was done with Response object before
func (r *Response) Clear() *Response {
	r.fields.Clear()
	return r
}

// Respond is a predicate to request.Respond(). May be used as a dummy handler
func Respond(request *Request) (*Response, error) {
	return request.Respond(), nil
}

// Code is a predicate to request.Respond().Code(...)
func Code(request *Request, code status.Code) *Response {
	return request.Respond().Code(code)
}

// String is a predicate to request.Respond().String(...)
func String(request *Request, str string) *Response {
	return request.Respond().String(str)
}

// Bytes is a predicate to request.Respond().Bytes(...)
func Bytes(request *Request, b []byte) *Response {
	return request.Respond().Bytes(b)
}

// JSON is a predicate to request.Respond().JSON(...)
func JSON(request *Request, model any) *Response {
	return request.Respond().JSON(model)
}

// Error is a predicate to request.Respond().Error(...)
func Error(request *Request, err error) *Response {
	return request.Respond().Error(err)
}
