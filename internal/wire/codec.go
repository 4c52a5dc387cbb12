package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrame bounds a single encoded message.
const MaxFrame = 64 << 20

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds limit")
	ErrMalformed     = errors.New("wire: malformed envelope")
)

// Conn sends and receives envelopes as frames: a 4-byte big-endian length
// followed by the msgpack encoding. Send is goroutine-safe; Receive must be
// called from one goroutine.
type Conn struct {
	r  *bufio.Reader
	mu sync.Mutex
	w  io.Writer
}

func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

func (c *Conn) Send(env Envelope) error {
	if err := validate(env); err != nil {
		return err
	}
	payload, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("wire: encode %s: %w", env.Kind, err)
	}
	if len(payload) > MaxFrame {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	n, err := safecast.Conv[uint32](len(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFrameTooLarge, err)
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, n)
	copy(frame[4:], payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("wire: write %s: %w", env.Kind, err)
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Receive reads the next envelope. A clean end of stream between frames is
// reported as io.EOF; a stream cut inside a frame as io.ErrUnexpectedEOF.
func (c *Conn) Receive() (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Envelope{}, err
	}
	var env Envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := validate(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func validate(env Envelope) error {
	ok := false
	switch env.Kind {
	case KindReady:
		ok = env.Ready != nil && env.Request == nil && env.Result == nil
	case KindCheckRequest:
		ok = env.Request != nil && env.Ready == nil && env.Result == nil
	case KindCheckResult:
		ok = env.Result != nil && env.Ready == nil && env.Request == nil
	case KindShutdown:
		ok = env.Ready == nil && env.Request == nil && env.Result == nil
	}
	if !ok {
		return fmt.Errorf("%w: kind %s", ErrMalformed, env.Kind)
	}
	return nil
}
