package store

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Loose objects are zstd-compressed on disk (objectPath's sharded layout),
// so every read and write goes through a pooled encoder/decoder: ported from
// modules/streamio's GetZstdReader/GetZstdWriter pair, folded directly into
// this package since writeObject/readObject were its only callers.

var objectEncoders = sync.Pool{
	New: func() any {
		e, _ := zstd.NewWriter(nil)
		return e
	},
}

var objectDecoders = sync.Pool{
	New: func() any {
		d, _ := zstd.NewReader(nil)
		return d
	},
}

// getObjectEncoder returns a *zstd.Encoder reset to write to w.
func getObjectEncoder(w io.Writer) *zstd.Encoder {
	e := objectEncoders.Get().(*zstd.Encoder)
	e.Reset(w)
	return e
}

// putObjectEncoder flushes and closes e, then returns it to the pool.
func putObjectEncoder(e *zstd.Encoder) error {
	err := e.Close()
	objectEncoders.Put(e)
	return err
}

// getObjectDecoder returns a *zstd.Decoder reset to read from r.
func getObjectDecoder(r io.Reader) (*zstd.Decoder, error) {
	d := objectDecoders.Get().(*zstd.Decoder)
	if err := d.Reset(r); err != nil {
		objectDecoders.Put(d)
		return nil, err
	}
	return d, nil
}

// putObjectDecoder returns d to the pool.
func putObjectDecoder(d *zstd.Decoder) {
	objectDecoders.Put(d)
}
