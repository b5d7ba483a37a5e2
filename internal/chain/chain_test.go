package chain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kitvault/kitvault/internal/logger"
	"github.com/kitvault/kitvault/internal/mock"
	"github.com/kitvault/kitvault/internal/storage"
)

func newFileLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.json")
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	n := 0
	clock := func() time.Time {
		n++
		return start.Add(time.Duration(n) * 1500 * time.Millisecond)
	}
	return New(storage.NewLocalStorage(path), logger.Nop(), WithClock(clock)), path
}

func TestAppend_ABCScenario(t *testing.T) {
	l, _ := newFileLog(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		msg, err := l.Log(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, Logged, msg)
	}

	blocks, err := l.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, Genesis, blocks[0].Prev)
	assert.Equal(t, "0", blocks[0].Prev)
	assert.Equal(t, ComputeHash(Block{Index: 1, Time: blocks[1].Time, Data: "b", Prev: blocks[1].Prev}), blocks[2].Prev)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, i, blocks[i].Index)
		assert.Equal(t, want, blocks[i].Data)
	}
	assert.NoError(t, Verify(blocks))
}

func TestAppend_ChainIntegrity(t *testing.T) {
	l, _ := newFileLog(t)
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		_, err := l.Append(ctx, fmt.Sprintf("event %d", i))
		require.NoError(t, err)
	}

	blocks, err := l.Blocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, n)

	for i := 0; i < n; i++ {
		recomputed := ComputeHash(blocks[i])
		assert.Equal(t, blocks[i].Hash, recomputed, "block %d", i)
		if i < n-1 {
			assert.Equal(t, recomputed, blocks[i+1].Prev, "block %d", i)
		}
	}
	assert.True(t, Valid(blocks))
}

func TestLog_StringifiesPayload(t *testing.T) {
	l, _ := newFileLog(t)
	ctx := context.Background()

	_, err := l.Log(ctx, 42)
	require.NoError(t, err)
	_, err = l.Log(ctx, []string{"x", "y"})
	require.NoError(t, err)

	blocks, err := l.Blocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", blocks[0].Data)
	assert.Equal(t, "[x y]", blocks[1].Data)
}

func TestTamper_DataEditDetectedAtThatBlock(t *testing.T) {
	for target := 0; target < 4; target++ {
		t.Run(fmt.Sprintf("block %d", target), func(t *testing.T) {
			l, path := newFileLog(t)
			ctx := context.Background()

			for i := 0; i < 4; i++ {
				_, err := l.Append(ctx, fmt.Sprintf("e%d", i))
				require.NoError(t, err)
			}

			blocks, err := l.Blocks(ctx)
			require.NoError(t, err)
			blocks[target].Data = "rewritten history"

			data, err := Encode(blocks)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data, 0600))

			stored, err := l.Blocks(ctx)
			require.NoError(t, err)

			err = Verify(stored)
			var ie *IntegrityError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, target, ie.Index)
			assert.ErrorIs(t, err, ErrIntegrity)
			assert.False(t, Valid(stored))

			reply, err := l.VerifyStored(ctx)
			require.NoError(t, err)
			assert.Contains(t, reply, fmt.Sprintf("Chain invalid at block %d", target))
		})
	}
}

func TestVerify_Failures(t *testing.T) {
	valid := func() []Block {
		var blocks []Block
		prev := Genesis
		for i := 0; i < 3; i++ {
			b := Block{Index: i, Time: "2024-01-01 12:00:00", Data: fmt.Sprint(i), Prev: prev}
			b.Hash = ComputeHash(b)
			blocks = append(blocks, b)
			prev = b.Hash
		}
		return blocks
	}

	tests := []struct {
		name   string
		mutate func([]Block) []Block
		index  int
	}{
		{name: "wrong genesis", mutate: func(b []Block) []Block { b[0].Prev = "1"; return b }, index: 0},
		{name: "stored hash edited", mutate: func(b []Block) []Block { b[1].Hash = "00"; return b }, index: 1},
		{name: "time edited", mutate: func(b []Block) []Block { b[2].Time = "2030-01-01 00:00:00"; return b }, index: 2},
		{name: "index edited", mutate: func(b []Block) []Block { b[1].Index = 5; return b }, index: 1},
		{name: "block removed", mutate: func(b []Block) []Block { return append(b[:1], b[2:]...) }, index: 1},
		{
			name: "rehashed block breaks next link",
			mutate: func(b []Block) []Block {
				b[0].Data = "forged"
				b[0].Hash = ComputeHash(b[0])
				return b
			},
			index: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.mutate(valid()))
			var ie *IntegrityError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.index, ie.Index)
		})
	}

	assert.NoError(t, Verify(valid()))
	assert.NoError(t, Verify(nil))
}

func TestView(t *testing.T) {
	l, path := newFileLog(t)
	ctx := context.Background()

	got, err := l.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmptyChain, got)

	_, err = l.Append(ctx, "a")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	got, err = l.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(raw), got)
	assert.Contains(t, got, "\n  {\n    \"index\": 0,\n")
}

// View does not parse, so even a malformed chain is shown.
func TestView_Malformed(t *testing.T) {
	l, path := newFileLog(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	got, err := l.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "{not json", got)
}

func TestAppend_MalformedChainIsFatal(t *testing.T) {
	l, path := newFileLog(t)
	ctx := context.Background()

	garbage := []byte(`[{"index": 0, "data": "a"`)
	require.NoError(t, os.WriteFile(path, garbage, 0600))

	_, err := l.Append(ctx, "b")
	assert.ErrorIs(t, err, ErrMalformedChain)

	msg, err := l.Log(ctx, "b")
	assert.ErrorIs(t, err, ErrMalformedChain)
	assert.Empty(t, msg)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, after)

	_, err = l.VerifyStored(ctx)
	assert.ErrorIs(t, err, ErrMalformedChain)
}

// Valid JSON that is not a chain must not be extended or rewritten.
func TestAppend_RejectsNonChainJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: `[{"bogus": true}]`},
		{name: "empty object", content: `[{}]`},
		{name: "null element", content: `[null]`},
		{name: "object not array", content: `{"index": 0}`},
		{name: "string element", content: `["block"]`},
		{name: "missing hash", content: `[{"index": 0, "time": "t", "data": "a", "prev": "0"}]`},
		{name: "empty hash", content: `[{"index": 0, "time": "t", "data": "a", "prev": "0", "hash": ""}]`},
		{name: "empty prev", content: `[{"index": 0, "time": "t", "data": "a", "prev": "", "hash": "ab"}]`},
		{name: "extra field", content: `[{"index": 0, "time": "t", "data": "a", "prev": "0", "hash": "ab", "note": "x"}]`},
		{name: "trailing value", content: `[] []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, path := newFileLog(t)
			ctx := context.Background()
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			_, err := l.Append(ctx, "x")
			assert.ErrorIs(t, err, ErrMalformedChain)

			_, err = l.Blocks(ctx)
			assert.ErrorIs(t, err, ErrMalformedChain)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(after))
		})
	}
}

func TestParse_EmptyChains(t *testing.T) {
	for _, content := range []string{`[]`, `null`, "[]\n"} {
		blocks, err := Parse([]byte(content))
		require.NoError(t, err, content)
		assert.Empty(t, blocks, content)
	}
}

func TestAppend_LoadErrorIsNotGenesis(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockBlobStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(nil, errors.New("permission denied"))

	l := New(store, logger.Nop())
	_, err := l.Append(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestAppend_SaveFailurePropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockBlobStore(ctrl)
	store.EXPECT().Load(gomock.Any()).Return(nil, storage.ErrNotFound)
	store.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	l := New(store, logger.Nop())
	_, err := l.Append(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestVerifyStored(t *testing.T) {
	l, _ := newFileLog(t)
	ctx := context.Background()

	got, err := l.VerifyStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmptyChain, got)

	for _, p := range []string{"a", "b"} {
		_, err := l.Append(ctx, p)
		require.NoError(t, err)
	}

	got, err = l.VerifyStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chain valid (2 blocks).", got)
}

// A chain written by the Python implementation verifies and can be extended.
func TestAppend_ExtendsForeignChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	foreign := `[
  {
    "index": 0,
    "time": "2024-01-01 12:00:00.000001",
    "data": "a",
    "prev": "0",
    "hash": "a28293ade328c9886423cf97fdef0b37c000ce2e8da7779de47f139fd86e0fb8"
  },
  {
    "index": 1,
    "time": "2024-01-01 12:00:01",
    "data": "b",
    "prev": "a28293ade328c9886423cf97fdef0b37c000ce2e8da7779de47f139fd86e0fb8",
    "hash": "7216175ebcf724f81d4d209f904af506c76a350f76c1914227e3e20caadf9ae8"
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(foreign), 0600))

	l := New(storage.NewLocalStorage(path), logger.Nop())
	ctx := context.Background()

	got, err := l.VerifyStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Chain valid (2 blocks).", got)

	b, err := l.Append(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Index)
	assert.Equal(t, "7216175ebcf724f81d4d209f904af506c76a350f76c1914227e3e20caadf9ae8", b.Prev)

	blocks, err := l.Blocks(ctx)
	require.NoError(t, err)
	assert.NoError(t, Verify(blocks))
}

func TestConcurrentAppends(t *testing.T) {
	l, _ := newFileLog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Append(ctx, fmt.Sprint(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	blocks, err := l.Blocks(ctx)
	require.NoError(t, err)
	assert.Len(t, blocks, 16)
	assert.NoError(t, Verify(blocks))
}

func TestFormatTime(t *testing.T) {
	base := time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)

	assert.Equal(t, "2024-03-09 07:05:03", FormatTime(base))
	assert.Equal(t, "2024-03-09 07:05:03.000001", FormatTime(base.Add(time.Microsecond)))
	assert.Equal(t, "2024-03-09 07:05:03.500000", FormatTime(base.Add(500*time.Millisecond)))
	// sub-microsecond precision is dropped
	assert.Equal(t, "2024-03-09 07:05:03", FormatTime(base.Add(999*time.Nanosecond)))
}

func TestEncode_Empty(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
