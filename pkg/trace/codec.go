package trace

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/Manu343726/lltrace/pkg/utils"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var ErrUnknownCodec = errors.New("unknown compression codec")

// Codec is the compressing container trace streams are written through
type Codec interface {
	Name() string
	// Extension is the file extension of streams written with this codec
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
	// Matches returns true if the header bytes identify a stream of this codec
	Matches(header []byte) bool
}

type gzipCodec struct{}

func (gzipCodec) Name() string      { return "gzip" }
func (gzipCodec) Extension() string { return ".gz" }

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gzipCodec) Matches(header []byte) bool {
	return bytes.HasPrefix(header, []byte{0x1f, 0x8b})
}

type zstdCodec struct{}

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) Extension() string { return ".zst" }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (zstdCodec) Matches(header []byte) bool {
	return bytes.HasPrefix(header, []byte{0x28, 0xb5, 0x2f, 0xfd})
}

type snappyCodec struct{}

func (snappyCodec) Name() string      { return "snappy" }
func (snappyCodec) Extension() string { return ".sz" }

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

func (snappyCodec) Matches(header []byte) bool {
	return bytes.HasPrefix(header, []byte("\xff\x06\x00\x00sNaPpY"))
}

var (
	Gzip   Codec = gzipCodec{}
	Zstd   Codec = zstdCodec{}
	Snappy Codec = snappyCodec{}

	codecs = []Codec{Gzip, Zstd, Snappy}
)

// Returns the names of the supported codecs
func CodecNames() []string {
	return utils.Map(codecs, Codec.Name)
}

// Returns the codec with the given name
func CodecByName(name string) (Codec, error) {
	for _, codec := range codecs {
		if codec.Name() == name {
			return codec, nil
		}
	}
	return nil, utils.MakeError(ErrUnknownCodec, "'%v', expected one of %v", name, utils.FormatSlice(CodecNames(), ", "))
}

// Returns the codec matching the extension of the path, gzip if none matches
func CodecForPath(path string) Codec {
	ext := filepath.Ext(path)
	for _, codec := range codecs {
		if codec.Extension() == ext {
			return codec
		}
	}
	return Gzip
}

type fileWriter struct {
	io.WriteCloser
	file *os.File
}

func (w *fileWriter) Close() error {
	return errors.Join(w.WriteCloser.Close(), w.file.Close())
}

// Creates (or truncates) a trace file compressed with the given codec
func Create(path string, codec Codec) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w, err := codec.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &fileWriter{WriteCloser: w, file: file}, nil
}

type streamReader struct {
	io.Reader
	closers []io.Closer
}

func (r *streamReader) Close() error {
	errs := make([]error, len(r.closers))
	for i, c := range r.closers {
		errs[i] = c.Close()
	}
	return errors.Join(errs...)
}

// Wraps a compressed stream with the decompressor of the codec identified by its
// header bytes. Streams matching no codec are read as plain text
func NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(r)
	header, _ := buffered.Peek(10)

	for _, codec := range codecs {
		if codec.Matches(header) {
			return codec.NewReader(buffered)
		}
	}

	return io.NopCloser(buffered), nil
}

// Opens a trace file, detecting its compression codec
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	rc, err := NewDecompressor(file)
	if err != nil {
		file.Close()
		return nil, utils.MakeError(err, "opening '%v'", path)
	}

	return &streamReader{Reader: rc, closers: []io.Closer{rc, file}}, nil
}
