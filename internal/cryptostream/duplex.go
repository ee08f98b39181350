package cryptostream

import (
	"context"
	"errors"
	"io"

	"cfb8d/internal/protocol"
)

// Duplex decrypts what it reads from and encrypts what it writes to one
// inner stream, using two independent daemon channels.
type Duplex struct {
	*Reader
	*Writer
}

// NewDuplex dials both channels. Inbound uses readKey/readIV, outbound uses
// writeKey/writeIV.
func NewDuplex(ctx context.Context, inner io.ReadWriter, socketPath string, readKey, readIV, writeKey, writeIV []byte, opts Options) (*Duplex, error) {
	r, err := NewReaderWithDirection(ctx, inner, socketPath, protocol.Decrypt, readKey, readIV, opts)
	if err != nil {
		return nil, err
	}
	w, err := NewWriterWithDirection(ctx, inner, socketPath, protocol.Encrypt, writeKey, writeIV, opts)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &Duplex{Reader: r, Writer: w}, nil
}

// Close releases both channels.
func (d *Duplex) Close() error {
	return errors.Join(d.Reader.Close(), d.Writer.Close())
}
