package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fiveChunks streams one text delta and a tool call split across chunks 2-4.
func fiveChunks() []*model.MockChunk {
	return []*model.MockChunk{
		{ChunkID: "resp-1", ChunkModel: "mock-model", Delta: "Looking up"},
		{Deltas: []model.ToolDelta{{Index: 0, ID: "call-1", Name: "search", ArgumentsDelta: `{"qu`}}},
		{Deltas: []model.ToolDelta{{Index: 0, ArgumentsDelta: `ery":"go`}}},
		{Deltas: []model.ToolDelta{{Index: 0, ArgumentsDelta: ` generics"}`}, {Index: 0, Done: true}}},
		{Reason: core.FinishToolCalls, Tokens: core.Usage{InputTokens: core.Int64(10), OutputTokens: core.Int64(6)}},
	}
}

func openStream(t *testing.T, adapter *model.MockAdapter) *Reconstructor {
	t.Helper()
	src, err := adapter.ExecuteStream(t.Context(), model.Request{})
	require.NoError(t, err)
	r := New(src, adapter.Capabilities())
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func drain(t *testing.T, r *Reconstructor) []*response.ResponseChunk {
	t.Helper()
	var chunks []*response.ResponseChunk
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

// -------------------- Reconstruction Tests --------------------

func TestReconstructor_ToolEmittedOnceWhenComplete(t *testing.T) {
	r := openStream(t, model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()}))

	chunks := drain(t, r)
	require.Len(t, chunks, 5)

	emitted := 0
	for i, c := range chunks {
		if i == 3 {
			require.Len(t, c.CompletedTools, 1)
			assert.Equal(t, "call-1", c.CompletedTools[0].ID)
			assert.Equal(t, "search", c.CompletedTools[0].Name)
			assert.JSONEq(t, `{"query":"go generics"}`, string(c.CompletedTools[0].Arguments))
		}
		emitted += len(c.CompletedTools)
	}
	assert.Equal(t, 1, emitted)
	assert.Equal(t, StateFinalized, r.State())
}

func TestReconstructor_StreamNonStreamEquivalence(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()})

	raw, err := adapter.Execute(t.Context(), model.Request{})
	require.NoError(t, err)
	want := response.Normalize(raw)

	r := openStream(t, adapter)
	got, err := r.Collect()
	require.NoError(t, err)

	assert.True(t, want.Equivalent(got), "stream: %+v\nexecute: %+v", got, want)
	assert.Equal(t, "Looking up", got.Content())
	assert.Equal(t, "resp-1", got.ID())
	assert.Equal(t, []core.FinishReason{core.FinishToolCalls}, got.FinishReasons())
	assert.Equal(t, int64(6), *got.Usage().OutputTokens)
	assert.Nil(t, got.Usage().CachedTokens)
}

func TestReconstructor_EquivalenceWithoutTools(t *testing.T) {
	chunks := []*model.MockChunk{{Delta: "a"}, {Delta: "b"}, {Reason: core.FinishStop}}
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: chunks})

	raw, err := adapter.Execute(t.Context(), model.Request{})
	require.NoError(t, err)

	got, err := openStream(t, adapter).Collect()
	require.NoError(t, err)
	assert.True(t, response.Normalize(raw).Equivalent(got))
	assert.Nil(t, got.ToolCalls())
	assert.False(t, got.Usage().Known())
}

func TestReconstructor_DegradesWithoutStreamingTools(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()}).
		WithCapabilities(model.Capabilities{SupportsJSONMode: true})
	r := openStream(t, adapter)

	chunks := drain(t, r)
	for i, c := range chunks[:4] {
		assert.Empty(t, c.CompletedTools, "chunk %d", i)
	}
	require.Len(t, chunks[4].CompletedTools, 1)
	assert.Equal(t, "call-1", chunks[4].CompletedTools[0].ID)
}

func TestReconstructor_DeferTools(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()})
	src, err := adapter.ExecuteStream(t.Context(), model.Request{})
	require.NoError(t, err)
	r := New(src, adapter.Capabilities(), func(o *Options) { o.DeferTools = true })
	defer func() { _ = r.Close() }()

	chunks := drain(t, r)
	assert.Empty(t, chunks[3].CompletedTools)
	require.Len(t, chunks[4].CompletedTools, 1)
	assert.True(t, r.Capabilities().SupportsStreamingTools)
}

func TestReconstructor_FinishReasonClosesOpenTools(t *testing.T) {
	chunks := []*model.MockChunk{
		{Deltas: []model.ToolDelta{{Index: 0, ID: "a", Name: "first"}}},
		{Deltas: []model.ToolDelta{{Index: 1, ID: "b", Name: "second", ArgumentsDelta: `{"n":2}`}}},
		{Reason: core.FinishToolCalls},
	}
	r := openStream(t, model.NewMockAdapter("mock", model.MockTurn{Chunks: chunks}))

	got := drain(t, r)
	require.Len(t, got[2].CompletedTools, 2)
	assert.Equal(t, "{}", string(got[2].CompletedTools[0].Arguments))
	assert.Equal(t, "second", got[2].CompletedTools[1].Name)
}

func TestReconstructor_PartialBuffers(t *testing.T) {
	r := openStream(t, model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()}))

	for range 3 {
		_, err := r.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, "Looking up", r.Content())
	args, ok := r.ToolArguments("search")
	require.True(t, ok)
	assert.Equal(t, `{"query":"go`, args)

	_, ok = r.ToolArguments("missing")
	assert.False(t, ok)
}

// -------------------- Lifecycle Tests --------------------

func TestReconstructor_Lazy(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()})
	r := openStream(t, adapter)

	assert.Equal(t, StateInit, r.State())
	assert.Equal(t, 0, adapter.Calls())

	_, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, StateAccumulating, r.State())
	assert.Equal(t, 1, adapter.Calls())
}

func TestReconstructor_CallResponseBeforeFinalized(t *testing.T) {
	r := openStream(t, model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()}))

	_, err := r.CallResponse()
	assert.ErrorIs(t, err, ErrNotFinalized)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.CallResponse()
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestReconstructor_InterruptedMidStream(t *testing.T) {
	boom := core.NewProviderTransportError("mock", 502, errors.New("bad gateway"))
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks(), Err: boom, FailAfter: 2})
	r := openStream(t, adapter)

	for range 2 {
		_, err := r.Next()
		require.NoError(t, err)
	}

	_, err := r.Next()
	var sie *core.StreamInterruptedError
	require.ErrorAs(t, err, &sie)
	assert.Equal(t, 2, sie.ChunksSeen)
	assert.ErrorIs(t, err, boom)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, core.KindStreamInterrupted, core.KindOf(err))

	assert.Equal(t, StateFailed, r.State())
	assert.Empty(t, r.Content(), "partial state is discarded")
	assert.Equal(t, 1, adapter.ClosedStreams())

	_, again := r.Next()
	assert.Equal(t, err, again)
	_, err = r.CallResponse()
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestReconstructor_FailsBeforeFirstChunk(t *testing.T) {
	boom := core.NewProviderTransportError("mock", 429, errors.New("rate limited"))
	r := openStream(t, model.NewMockAdapter("mock", model.MockTurn{Err: boom}))

	_, err := r.Next()
	assert.Same(t, boom, err)
	assert.Equal(t, StateFailed, r.State())
}

func TestReconstructor_CloseEarly(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()})
	r := openStream(t, adapter)

	_, err := r.Next()
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, adapter.ClosedStreams())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.CallResponse()
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestReconstructor_ClosesOnExhaustion(t *testing.T) {
	adapter := model.NewMockAdapter("mock", model.MockTurn{Chunks: fiveChunks()})
	r := openStream(t, adapter)

	_, err := r.Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.ClosedStreams())

	first, _ := r.CallResponse()
	second, _ := r.CallResponse()
	assert.Same(t, first, second)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "INIT", StateInit.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
