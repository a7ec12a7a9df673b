package respcache

import (
	"fmt"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Shared codecs. zstd encoders and decoders are safe for concurrent use
// through EncodeAll/DecodeAll.
var (
	headerEncMode cbor.EncMode
	zstdEncoder   *zstd.Encoder
	zstdDecoder   *zstd.Decoder
)

func init() {
	var err error

	// Core Deterministic Encoding: identical headers always encode to
	// identical bytes.
	headerEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("respcache: CBOR encoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("respcache: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("respcache: zstd decoder initialization failed: " + err.Error())
	}
}

func encodeHeader(h http.Header) ([]byte, error) {
	data, err := headerEncMode.Marshal(map[string][]string(h))
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	return data, nil
}

func decodeHeader(data []byte) (http.Header, error) {
	var h map[string][]string
	if err := cbor.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if h == nil {
		h = map[string][]string{}
	}
	return http.Header(h), nil
}

// compressBody never returns nil; the body column is NOT NULL and an
// empty input otherwise yields a nil frame.
func compressBody(body []byte) []byte {
	return zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)/2+16))
}

func decompressBody(compressed []byte, size int) ([]byte, error) {
	body, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(body) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(body), size)
	}
	return body, nil
}
