// Package chain implements the tamper-evident event log: an append-only
// sequence of blocks where each block carries the hash of its predecessor.
//
// The whole chain is loaded, extended in memory and written back on every
// append. Editing any stored block after the fact breaks either that block's
// own hash or the next block's prev link, which Verify reports.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/storage"
)

// Genesis is the prev value of the first block.
const Genesis = "0"

// TimeLayout is the block timestamp format. Microseconds are omitted when
// they are zero.
const TimeLayout = "2006-01-02 15:04:05"

// Replies returned by the command-level operations.
const (
	Logged     = "Logged to chain."
	EmptyChain = "Empty chain."
)

var (
	// ErrMalformedChain means the stored chain exists but does not parse.
	// Appending is refused so existing history is never replaced.
	ErrMalformedChain = errors.New("chain: stored chain is malformed")
	// ErrIntegrity means a block's hash or link does not match.
	ErrIntegrity = errors.New("chain: integrity check failed")
)

// Block is one chain record. Field order matches the stored JSON.
type Block struct {
	Index int    `json:"index"`
	Time  string `json:"time"`
	Data  string `json:"data"`
	Prev  string `json:"prev"`
	Hash  string `json:"hash"`
}

// IntegrityError reports the first block that fails verification.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain invalid at block %d: %s", e.Index, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// Log is the hash chain log over a BlobStore.
type Log struct {
	mu    sync.Mutex
	store storage.BlobStore
	log   *logger.Logger
	now   func() time.Time
}

// New creates a chain log over store.
func New(store storage.BlobStore, log *logger.Logger, opts ...Option) *Log {
	if log == nil {
		log = logger.Nop()
	}
	l := &Log{
		store: store,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FormatTime renders t in TimeLayout, adding six-digit microseconds when
// they are non-zero.
func FormatTime(t time.Time) string {
	s := t.Format(TimeLayout)
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s
}

// Log appends payload, stringified with fmt.Sprint, and returns Logged.
func (l *Log) Log(ctx context.Context, payload any) (string, error) {
	if _, err := l.Append(ctx, fmt.Sprint(payload)); err != nil {
		return "", err
	}
	return Logged, nil
}

// Append adds a block holding data and rewrites the stored chain.
func (l *Log) Append(ctx context.Context, data string) (Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocks, err := l.load(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedChain) {
			l.log.Error().Err(err).Msg("refusing to append to malformed chain, operator attention required")
		}
		return Block{}, err
	}

	prev := Genesis
	if len(blocks) > 0 {
		prev = blocks[len(blocks)-1].Hash
	}

	block := Block{
		Index: len(blocks),
		Time:  FormatTime(l.now()),
		Data:  data,
		Prev:  prev,
	}
	block.Hash = ComputeHash(block)

	blocks = append(blocks, block)
	if err := l.save(ctx, blocks); err != nil {
		return Block{}, err
	}

	l.log.Debug().Int("index", block.Index).Str("hash", block.Hash).Msg("block appended")
	return block, nil
}

// View returns the stored chain text as is, or EmptyChain when nothing is
// stored. It does not parse or verify.
func (l *Log) View(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return EmptyChain, nil
		}
		return "", fmt.Errorf("failed to load chain: %w", err)
	}
	return string(data), nil
}

// Blocks returns the parsed stored chain.
func (l *Log) Blocks(ctx context.Context) ([]Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// VerifyStored loads and verifies the stored chain and describes the result.
// A malformed chain is returned as an error; a broken chain is a normal
// reply.
func (l *Log) VerifyStored(ctx context.Context) (string, error) {
	blocks, err := l.Blocks(ctx)
	if err != nil {
		if errors.Is(err, ErrMalformedChain) {
			l.log.Error().Err(err).Msg("stored chain is malformed")
		}
		return "", err
	}
	if len(blocks) == 0 {
		return EmptyChain, nil
	}

	if err := Verify(blocks); err != nil {
		l.log.Error().Err(err).Msg("chain verification failed")
		var ie *IntegrityError
		if errors.As(err, &ie) {
			return fmt.Sprintf("Chain invalid at block %d: %s.", ie.Index, ie.Reason), nil
		}
		return "", err
	}
	return fmt.Sprintf("Chain valid (%d blocks).", len(blocks)), nil
}

// Verify checks every block's index, prev link and hash. It returns an
// *IntegrityError for the first block that fails, or nil.
func Verify(blocks []Block) error {
	prev := Genesis
	for i, b := range blocks {
		if b.Index != i {
			return &IntegrityError{Index: i, Reason: fmt.Sprintf("index is %d", b.Index)}
		}
		if b.Prev != prev {
			return &IntegrityError{Index: i, Reason: "prev does not match previous block hash"}
		}
		if ComputeHash(b) != b.Hash {
			return &IntegrityError{Index: i, Reason: "hash does not match block contents"}
		}
		prev = b.Hash
	}
	return nil
}

// Valid reports whether Verify finds no broken block.
func Valid(blocks []Block) bool {
	return Verify(blocks) == nil
}

// storedBlock mirrors Block with pointer fields so absent keys can be told
// apart from empty values.
type storedBlock struct {
	Index *int    `json:"index"`
	Time  *string `json:"time"`
	Data  *string `json:"data"`
	Prev  *string `json:"prev"`
	Hash  *string `json:"hash"`
}

// Parse decodes stored chain text. Every element must be an object with
// exactly the five block fields, and prev and hash must be non-empty.
// Anything else is ErrMalformedChain. A JSON null is an empty chain.
func Parse(data []byte) ([]Block, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var stored []*storedBlock
	if err := dec.Decode(&stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChain, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after chain", ErrMalformedChain)
	}

	blocks := make([]Block, 0, len(stored))
	for i, sb := range stored {
		if sb == nil {
			return nil, fmt.Errorf("%w: block %d is null", ErrMalformedChain, i)
		}
		if sb.Index == nil || sb.Time == nil || sb.Data == nil || sb.Prev == nil || sb.Hash == nil {
			return nil, fmt.Errorf("%w: block %d is missing a field", ErrMalformedChain, i)
		}
		if *sb.Prev == "" || *sb.Hash == "" {
			return nil, fmt.Errorf("%w: block %d has an empty prev or hash", ErrMalformedChain, i)
		}
		blocks = append(blocks, Block{
			Index: *sb.Index,
			Time:  *sb.Time,
			Data:  *sb.Data,
			Prev:  *sb.Prev,
			Hash:  *sb.Hash,
		})
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	return blocks, nil
}

// Encode renders blocks as a two-space indented JSON array.
func Encode(blocks []Block) ([]byte, error) {
	if blocks == nil {
		blocks = []Block{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(blocks); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (l *Log) load(ctx context.Context) ([]Block, error) {
	data, err := l.store.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	return Parse(data)
}

func (l *Log) save(ctx context.Context, blocks []Block) error {
	data, err := Encode(blocks)
	if err != nil {
		return fmt.Errorf("failed to serialize chain: %w", err)
	}
	if err := l.store.Save(ctx, data); err != nil {
		return fmt.Errorf("failed to save chain: %w", err)
	}
	return nil
}
