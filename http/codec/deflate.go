package codec

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// NewDeflate returns the codec for the "deflate" content-coding, which is the zlib format
// (RFC 1950) despite the name.
func NewDeflate() Codec {
	newEncoder := func() encoder {
		w, err := zlib.NewWriterLevel(nil, zlib.DefaultCompression)
		if err != nil {
			panic(err)
		}

		return w
	}

	return newBaseCodec("deflate", newBaseInstance(newEncoder, resetDeflate))
}

func resetDeflate(decoder io.Reader, src io.Reader) (io.Reader, error) {
	if decoder == nil {
		r, err := zlib.NewReader(src)
		if err != nil {
			return nil, err
		}

		return r, nil
	}

	return decoder, decoder.(zlib.Resetter).Reset(src, nil)
}
