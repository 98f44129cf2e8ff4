package answercache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

const (
	compressThreshold = 1024

	codecPlain byte = 'j'
	codecZstd  byte = 'z'
)

var errUnknownCodec = errors.New("unknown cache codec")

// 싱글톤 encoder/decoder - goroutine-safe 재사용
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	initOnce    sync.Once
	errInit     error
)

func initZstd() error {
	initOnce.Do(func() {
		var err error
		zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			errInit = fmt.Errorf("create zstd encoder: %w", err)
			return
		}
		zstdDecoder, err = zstd.NewReader(nil)
		if err != nil {
			errInit = fmt.Errorf("create zstd decoder: %w", err)
		}
	})
	return errInit
}

// encodeEntry 는 항목을 JSON 으로 직렬화하고, 임계값을 넘으면 zstd 로 압축한다.
// 첫 바이트는 codec 표식이다.
func encodeEntry(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	if len(raw) <= compressThreshold {
		return append([]byte{codecPlain}, raw...), nil
	}
	if err := initZstd(); err != nil {
		return nil, err
	}
	dst := make([]byte, 1, len(raw)/2+1)
	dst[0] = codecZstd
	return zstdEncoder.EncodeAll(raw, dst), nil
}

func decodeEntry(data []byte) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, errUnknownCodec
	}

	payload := data[1:]
	switch data[0] {
	case codecPlain:
	case codecZstd:
		if err := initZstd(); err != nil {
			return Entry{}, err
		}
		decoded, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("zstd decompress: %w", err)
		}
		payload = decoded
	default:
		return Entry{}, fmt.Errorf("%w: %q", errUnknownCodec, data[0])
	}

	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return e, nil
}
