package codec

import (
	"io"

	"github.com/zavakid/tiny-http/http"
)

type Codec interface {
	// Token returns a coding token associated with the codec itself.
	Token() string
	New() Instance
}

type Instance interface {
	Compressor
	Decompressor
}

// Compressor encodes everything written into it onto the writer it was reset with. Close
// completes the encoded stream, but never closes the underlying writer.
type Compressor interface {
	io.WriteCloser
	// Flush pushes everything buffered so far down to the underlying writer.
	Flush() error
	ResetCompressor(w io.Writer)
}

// Decompressor decodes the stream fetched from the source. Reset may block, as some formats
// require reading the header eagerly.
type Decompressor interface {
	http.Fetcher
	ResetDecompressor(source http.Fetcher, bufferSize int) error
}

// Default returns all the codecs available out of the box, in order of preference.
func Default() []Codec {
	return []Codec{NewBrotli(), NewZSTD(), NewGZIP(), NewDeflate()}
}
