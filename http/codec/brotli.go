package codec

import (
	"io"

	"github.com/andybalholm/brotli"
)

func NewBrotli() Codec {
	newEncoder := func() encoder {
		return brotli.NewWriterLevel(nil, brotli.DefaultCompression)
	}

	return newBaseCodec("br", newBaseInstance(newEncoder, resetBrotli))
}

func resetBrotli(decoder io.Reader, src io.Reader) (io.Reader, error) {
	if decoder == nil {
		return brotli.NewReader(src), nil
	}

	return decoder, decoder.(*brotli.Reader).Reset(src)
}
