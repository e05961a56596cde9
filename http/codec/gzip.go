package codec

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

func NewGZIP() Codec {
	newEncoder := func() encoder {
		w, err := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		if err != nil {
			panic(err)
		}

		return w
	}

	return newBaseCodec("gzip", newBaseInstance(newEncoder, resetGZIP))
}

func resetGZIP(decoder io.Reader, src io.Reader) (io.Reader, error) {
	if decoder == nil {
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, err
		}

		return r, nil
	}

	return decoder, decoder.(*gzip.Reader).Reset(src)
}
