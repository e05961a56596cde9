package requestgen

import (
	"strconv"
	"strings"

	"github.com/dchest/uniuri"
	"github.com/zavakid/tiny-http/kv"
)

// Headers returns n headers, the Host header included.
func Headers(n int) *kv.Storage {
	hdrs := kv.NewPrealloc(n)

	for i := range n - 1 {
		hdrs.Add("X-"+uniuri.NewLen(8)+"-"+strconv.Itoa(i), uniuri.New())
	}

	return hdrs.Add("Host", "localhost")
}

func HeadersBlock(hdrs *kv.Storage) (buff []byte) {
	for key, value := range hdrs.Pairs() {
		buff = append(buff, key+": "+value+"\r\n"...)
	}

	return buff
}

// Generate renders a GET request to the path.
func Generate(path string, hdrs *kv.Storage) (request []byte) {
	request = append(request, "GET /"+strings.TrimPrefix(path, "/")+" HTTP/1.1\r\n"...)
	request = append(request, HeadersBlock(hdrs)...)

	return append(request, '\r', '\n')
}

// Pipeline concatenates n copies of the request.
func Pipeline(request []byte, n int) []byte {
	return []byte(strings.Repeat(string(request), n))
}
