package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cfb8d/internal/cryptostream"
	"cfb8d/internal/logging"
	"cfb8d/internal/protocol"
)

type cryptFlags struct {
	key    string
	iv     string
	input  string
	output string
}

func newCryptCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCryptCommand(ctx, protocol.Encrypt, "encrypt", "Encrypt a stream through the daemon"),
		newCryptCommand(ctx, protocol.Decrypt, "decrypt", "Decrypt a stream through the daemon"),
	}
}

func newCryptCommand(ctx *commandContext, dir protocol.Direction, use, short string) *cobra.Command {
	var flags cryptFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + ".\n\nReads --input (default stdin) and writes the transformed bytes to --output\n" +
			"(default stdout). Key and IV are 16 bytes each, given as 32 hex characters.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrypt(cmd, ctx, dir, flags)
		},
	}
	cmd.Flags().StringVar(&flags.key, "key", "", "AES-128 key as 32 hex characters")
	cmd.Flags().StringVar(&flags.iv, "iv", "", "Initialization vector as 32 hex characters")
	cmd.Flags().StringVarP(&flags.input, "input", "i", "-", "Input file, - for stdin")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "-", "Output file, - for stdout")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("iv")
	return cmd
}

func runCrypt(cmd *cobra.Command, ctx *commandContext, dir protocol.Direction, flags cryptFlags) error {
	key, err := decodeHexParam("key", flags.key, protocol.KeySize)
	if err != nil {
		return err
	}
	iv, err := decodeHexParam("iv", flags.iv, protocol.IVSize)
	if err != nil {
		return err
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	in, closeIn, err := openInput(cmd, flags.input)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(cmd, flags.output)
	if err != nil {
		return err
	}

	buffered := bufio.NewWriter(out)
	started := time.Now()
	var copied int64
	switch dir {
	case protocol.Encrypt:
		w, err := cryptostream.NewWriterWithDirection(cmd.Context(), buffered, ctx.socketPath(), dir, key, iv, ctx.streamOptions())
		if err != nil {
			closeOut()
			return err
		}
		copied, err = io.Copy(w, in)
		err = errors.Join(err, w.Flush(), w.Close())
		if err != nil {
			closeOut()
			return fmt.Errorf("%s stream: %w", dir, err)
		}
	default:
		r, err := cryptostream.NewReaderWithDirection(cmd.Context(), in, ctx.socketPath(), dir, key, iv, ctx.streamOptions())
		if err != nil {
			closeOut()
			return err
		}
		copied, err = io.Copy(buffered, r)
		err = errors.Join(err, buffered.Flush(), r.Close())
		if err != nil {
			closeOut()
			return fmt.Errorf("%s stream: %w", dir, err)
		}
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	logger.Debug("stream complete",
		logging.String(logging.FieldEventType, "stream_complete"),
		logging.String(logging.FieldDirection, dir.String()),
		logging.Int64("bytes", copied),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func decodeHexParam(name, value string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("--%s: invalid hex: %w", name, err)
	}
	if len(decoded) != size {
		return nil, fmt.Errorf("--%s: expected %d bytes (%d hex characters), got %d bytes", name, size, size*2, len(decoded))
	}
	return decoded, nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	var once bool
	return file, func() error {
		if once {
			return nil
		}
		once = true
		return file.Close()
	}, nil
}
