// Package command routes free-text command lines to registered handlers.
//
// A line is "keyword rest of line". The keyword is matched case-insensitively
// and the handler receives everything after the first space verbatim.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/kitvault/kitvault/internal/logger"
)

// Keywords registered by RegisterVault and RegisterChain.
const (
	KeywordNote        = "note"
	KeywordVaultRead   = "vault_read"
	KeywordVaultList   = "vault_list"
	KeywordVaultRemove = "vault_remove"
	KeywordLog         = "log"
	KeywordChainView   = "chain_view"
	KeywordChainVerify = "chain_verify"
)

var (
	// ErrDuplicate means the keyword already has a handler.
	ErrDuplicate = errors.New("command: keyword already registered")
	// ErrEmptyKeyword means the keyword is blank or contains whitespace.
	ErrEmptyKeyword = errors.New("command: invalid keyword")
)

// Handler serves one keyword. arg is the text after the keyword, possibly
// empty.
type Handler func(ctx context.Context, arg string) (string, error)

// Registry maps keywords to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Register binds name to h. Names are stored lower-cased.
func (r *Registry) Register(name string, h Handler) error {
	key := strings.ToLower(name)
	if key == "" || strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrEmptyKeyword, name)
	}
	if h == nil {
		return fmt.Errorf("command: nil handler for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, key)
	}
	r.handlers[key] = h
	r.log.Debug().Str("keyword", key).Msg("command registered")
	return nil
}

// Keywords returns the registered keywords in ascending order.
func (r *Registry) Keywords() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse splits a line into its lower-cased keyword and argument. Leading
// whitespace is ignored.
func Parse(line string) (keyword, arg string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	end := strings.IndexFunc(line, unicode.IsSpace)
	if end < 0 {
		return strings.ToLower(line), ""
	}
	// drop exactly one separator, the argument keeps any further spacing
	_, size := utf8.DecodeRuneInString(line[end:])
	return strings.ToLower(line[:end]), line[end+size:]
}

// Dispatch runs the handler for the line's keyword. handled is false when
// the line is blank or the keyword is unknown. A handler error is logged and
// rendered as "Error: <message>".
func (r *Registry) Dispatch(ctx context.Context, line string) (reply string, handled bool) {
	keyword, arg := Parse(line)
	if keyword == "" {
		return "", false
	}

	r.mu.RLock()
	h, ok := r.handlers[keyword]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}

	reply, err := h(ctx, arg)
	if err != nil {
		r.log.Error().Err(err).Str("keyword", keyword).Msg("command failed")
		return "Error: " + err.Error(), true
	}
	return reply, true
}
