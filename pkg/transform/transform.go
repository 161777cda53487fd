package transform

import (
	"fmt"
	"sync"

	"github.com/agenthands/namereg/pkg/core"
	"github.com/klauspost/compress/zstd"
)

// Every stored value carries a small envelope so that values written under
// one transform stay readable after the configured transform changes.
const (
	Magic      = "NRG"
	Version    = 1
	headerSize = len(Magic) + 3
)

const (
	FlagCompressed = 1 << 0
)

const (
	AlgNone = 0
	AlgZstd = 1
)

// Transform defines the interface for encoding/decoding catalog values.
type Transform interface {
	Name() string
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// New builds the transform named in cfg.
func New(cfg core.TransformConfig) (Transform, error) {
	switch cfg.Name {
	case "zstd":
		return NewZstd(cfg.ZstdLevel)
	case "none", "":
		return NewNone(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transform %q", core.ErrInvalidInput, cfg.Name)
	}
}

type noneTransform struct {
	// Values written earlier by a zstd transform still need a decoder.
	once   sync.Once
	dec    *zstd.Decoder
	decErr error
}

// NewNone returns a transform that stores values uncompressed.
func NewNone() Transform {
	return &noneTransform{}
}

func (t *noneTransform) Name() string { return "none" }

func (t *noneTransform) Encode(plain []byte) ([]byte, error) {
	return seal(0, AlgNone, plain), nil
}

func (t *noneTransform) Decode(stored []byte) ([]byte, error) {
	if len(stored) >= headerSize && stored[len(Magic)+1]&FlagCompressed != 0 {
		t.once.Do(func() {
			t.dec, t.decErr = zstd.NewReader(nil)
		})
		if t.decErr != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", t.decErr)
		}
	}
	return open(stored, t.dec)
}

type zstdTransform struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd returns a transform that compresses values with zstd at level.
func NewZstd(level int) (Transform, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &zstdTransform{
		encoder: enc,
		decoder: dec,
	}, nil
}

func (t *zstdTransform) Name() string { return "zstd" }

func (t *zstdTransform) Encode(plain []byte) ([]byte, error) {
	return seal(FlagCompressed, AlgZstd, t.encoder.EncodeAll(plain, nil)), nil
}

func (t *zstdTransform) Decode(stored []byte) ([]byte, error) {
	return open(stored, t.decoder)
}

func seal(flags, alg byte, payload []byte) []byte {
	envelope := make([]byte, 0, headerSize+len(payload))
	envelope = append(envelope, Magic...)
	envelope = append(envelope, Version, flags, alg)
	return append(envelope, payload...)
}

func open(stored []byte, dec *zstd.Decoder) ([]byte, error) {
	if len(stored) < headerSize {
		return nil, fmt.Errorf("%w: value too small for envelope", core.ErrCorrupt)
	}

	if string(stored[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: invalid magic", core.ErrCorrupt)
	}

	hdr := stored[len(Magic):headerSize]
	if hdr[0] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", core.ErrCorrupt, hdr[0])
	}

	flags, alg := hdr[1], hdr[2]
	payload := stored[headerSize:]

	if flags&FlagCompressed == 0 {
		return payload, nil
	}
	if alg != AlgZstd {
		return nil, fmt.Errorf("%w: unsupported compression algorithm %d", core.ErrCorrupt, alg)
	}
	plain, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}
	return plain, nil
}
