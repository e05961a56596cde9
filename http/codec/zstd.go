package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func NewZSTD() Codec {
	newEncoder := func() encoder {
		w, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(err)
		}

		return w
	}

	return newBaseCodec("zstd", newBaseInstance(newEncoder, resetZSTD))
}

func resetZSTD(decoder io.Reader, src io.Reader) (io.Reader, error) {
	if decoder == nil {
		r, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}

		return r, nil
	}

	return decoder, decoder.(*zstd.Decoder).Reset(src)
}
