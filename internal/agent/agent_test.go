package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyallcooper/reclaim/internal/llm"
	"github.com/lyallcooper/reclaim/internal/types"
)

// fakeChat replays scripted replies and records each request.
type fakeChat struct {
	replies []string
	errs    []error
	calls   [][]llm.Message
}

func (f *fakeChat) Model() string { return "fake-model" }

func (f *fakeChat) Chat(_ context.Context, msgs []llm.Message, _ float64) (*llm.Completion, error) {
	n := len(f.calls)
	f.calls = append(f.calls, append([]llm.Message(nil), msgs...))
	if n < len(f.errs) && f.errs[n] != nil {
		return nil, f.errs[n]
	}
	if n >= len(f.replies) {
		return nil, errors.New("unexpected call")
	}
	return &llm.Completion{
		Model:   "fake-model",
		Content: f.replies[n],
		Usage:   types.TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}

type fakeSearch struct {
	answers map[string]string
	queries []string
}

func (f *fakeSearch) Lookup(_ context.Context, name string) (string, error) {
	f.queries = append(f.queries, name)
	if a, ok := f.answers[name]; ok {
		return a, nil
	}
	return "", errors.New("no results")
}

func entries(names ...string) []types.Entry {
	out := make([]types.Entry, len(names))
	for i, n := range names {
		out[i] = types.Entry{Name: n, Path: "/data/" + n, Size: int64(1024 * (i + 1)), Kind: types.KindDirectory}
	}
	return out
}

func TestClassifyBasic(t *testing.T) {
	chat := &fakeChat{replies: []string{"```json\n" + `[
		{"index":1,"name":"cache","classification":"safe_to_delete","purpose":"browser cache","reason":"regenerated","risk":"low"},
		{"index":2,"name":"photos","classification":"keep","purpose":"pictures","reason":"personal","risk":"high"}
	]` + "\n```"}}
	a := New(chat, nil, nil)

	res := a.Classify(context.Background(), entries("cache", "photos"), "/data")

	require.Len(t, res.Verdicts, 2)
	assert.Equal(t, types.SafeToDelete, res.Verdicts[0].Classification)
	assert.Equal(t, types.RiskLow, res.Verdicts[0].Risk)
	assert.Equal(t, types.Keep, res.Verdicts[1].Classification)
	assert.Equal(t, int64(15), res.Usage.Total)
	assert.Empty(t, res.Trace.Error)
	assert.Equal(t, "fake-model", res.Trace.Model)

	require.Len(t, chat.calls, 1)
	user := chat.calls[0][1].Content
	assert.Contains(t, user, `1. [directory] "cache" - 1KiB`)
	assert.Contains(t, user, `2. [directory] "photos" - 2KiB`)
	assert.Contains(t, user, `"/data"`)
}

func TestClassifyNormalizesVerdicts(t *testing.T) {
	chat := &fakeChat{replies: []string{`{"results":[
		{"index":"1","classification":"SAFE_TO_DELETE","risk":"extreme"},
		{"index":3,"classification":"delete_it","risk":"low"},
		{"index":9,"classification":"keep","risk":"low"}
	]}`}}
	a := New(chat, nil, nil)

	res := a.Classify(context.Background(), entries("a", "b", "c"), "/data")

	require.Len(t, res.Verdicts, 3)
	assert.Equal(t, types.SafeToDelete, res.Verdicts[0].Classification)
	assert.Equal(t, types.RiskMedium, res.Verdicts[0].Risk)
	assert.Equal(t, "a", res.Verdicts[0].Name)

	// Missing index is filled in conservatively.
	assert.Equal(t, 2, res.Verdicts[1].Index)
	assert.Equal(t, types.Suspicious, res.Verdicts[1].Classification)
	assert.Equal(t, types.RiskHigh, res.Verdicts[1].Risk)

	assert.Equal(t, types.Suspicious, res.Verdicts[2].Classification)
	assert.Equal(t, types.RiskLow, res.Verdicts[2].Risk)
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		chat *fakeChat
	}{
		{"transport error", &fakeChat{errs: []error{errors.New("connection refused")}}},
		{"unparseable", &fakeChat{replies: []string{"Sorry, I can't help with that."}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(tt.chat, nil, nil).Classify(context.Background(), entries("a", "b"), "/data")

			require.Len(t, res.Verdicts, 2)
			for i, v := range res.Verdicts {
				assert.Equal(t, i+1, v.Index)
				assert.Equal(t, types.Suspicious, v.Classification)
				assert.Equal(t, types.RiskHigh, v.Risk)
				assert.Equal(t, failedPurpose, v.Purpose)
				assert.Equal(t, res.Trace.Error, v.Reason)
			}
			assert.NotEmpty(t, res.Trace.Error)
		})
	}
}

func TestClassifyNeedsSearchDisabled(t *testing.T) {
	chat := &fakeChat{replies: []string{`[
		{"index":1,"classification":"needs_search","reason":"unknown vendor","risk":"medium"},
		{"index":2,"classification":"keep","reason":"docs","risk":"high"}
	]`}}
	a := New(chat, nil, nil)

	res := a.Classify(context.Background(), entries("zxqtool", "docs"), "/data")

	assert.Len(t, chat.calls, 1, "no follow-up without search")
	assert.Equal(t, types.Suspicious, res.Verdicts[0].Classification)
	assert.Equal(t, "unknown vendor"+downgradeSuffix, res.Verdicts[0].Reason)
	assert.Equal(t, types.Keep, res.Verdicts[1].Classification)
}

func TestClassifyNeedsSearchFollowUp(t *testing.T) {
	first := `[
		{"index":1,"classification":"needs_search","reason":"unknown","risk":"medium"},
		{"index":2,"classification":"keep","reason":"docs","risk":"high"},
		{"index":3,"classification":"needs_search","reason":"unknown","risk":"medium"}
	]`
	chat := &fakeChat{replies: []string{first, `[
		{"index":1,"classification":"safe_to_delete","purpose":"shader cache","reason":"regenerated by the driver","risk":"low"}
	]`}}
	searcher := &fakeSearch{answers: map[string]string{"zxqcache": "GPU shader cache"}}
	a := New(chat, searcher, nil)

	res := a.Classify(context.Background(), entries("zxqcache", "docs", "mystery"), "/data")

	assert.Equal(t, []string{"zxqcache", "mystery"}, searcher.queries)
	require.Len(t, chat.calls, 2)

	followUp := chat.calls[1]
	require.Len(t, followUp, 4)
	assert.Equal(t, llm.RoleSystem, followUp[0].Role)
	assert.Equal(t, llm.RoleUser, followUp[1].Role)
	assert.Equal(t, llm.RoleAssistant, followUp[2].Role)
	assert.Equal(t, first, followUp[2].Content)
	assert.Equal(t, llm.RoleUser, followUp[3].Role)
	assert.Contains(t, followUp[3].Content, `- "zxqcache": GPU shader cache`)
	assert.Contains(t, followUp[3].Content, `- "mystery": `+noInfo)

	assert.Equal(t, types.SafeToDelete, res.Verdicts[0].Classification)
	assert.Equal(t, "regenerated by the driver", res.Verdicts[0].Reason)
	assert.Equal(t, types.Keep, res.Verdicts[1].Classification)
	// Not answered in the follow-up, so downgraded.
	assert.Equal(t, types.Suspicious, res.Verdicts[2].Classification)
	assert.True(t, strings.HasSuffix(res.Verdicts[2].Reason, unresolvedSuffix))
	assert.NotContains(t, res.Verdicts[2].Reason, downgradeSuffix)

	assert.Equal(t, int64(30), res.Usage.Total)
	assert.NotEmpty(t, res.Trace.FollowUpPrompt)
}

func TestClassifyFollowUpFailure(t *testing.T) {
	chat := &fakeChat{
		replies: []string{`[{"index":1,"classification":"needs_search","risk":"low"}]`},
		errs:    []error{nil, errors.New("timeout")},
	}
	a := New(chat, &fakeSearch{}, nil)

	res := a.Classify(context.Background(), entries("x"), "/data")

	require.Len(t, res.Verdicts, 1)
	assert.Equal(t, types.Suspicious, res.Verdicts[0].Classification)
	assert.Equal(t, types.RiskHigh, res.Verdicts[0].Risk)
	assert.Contains(t, res.Verdicts[0].Reason, "timeout")
	assert.Equal(t, int64(15), res.Usage.Total, "first exchange is still billed")
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		err        error
		wantSafe   bool
		wantReason string
	}{
		{"safe", `{"safe":true,"reason":"only cache files"}`, nil, true, "only cache files"},
		{"fenced unsafe", "```json\n{\"safe\":false,\"reason\":\"contains source\"}\n```", nil, false, "contains source"},
		{"non-boolean safe", `{"safe":"yes","reason":"?"}`, nil, false, "?"},
		{"garbage", `I think so`, nil, false, verifyFailPrefix + llm.ErrInvalidJSON.Error()},
		{"transport", "", errors.New("boom"), false, verifyFailPrefix + "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChat{replies: []string{tt.reply}, errs: []error{tt.err}}
			res := New(chat, nil, nil).Verify(context.Background(), "build", entries("a.o"), "/data/build")

			assert.Equal(t, tt.wantSafe, res.Safe)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestVerifyEmptyDirectoryPrompt(t *testing.T) {
	chat := &fakeChat{replies: []string{`{"safe":true,"reason":"empty"}`}}
	New(chat, nil, nil).Verify(context.Background(), "tmp", nil, "/data/tmp")

	require.Len(t, chat.calls, 1)
	assert.Contains(t, chat.calls[0][1].Content, "(the directory is empty)")
}

func TestSummarize(t *testing.T) {
	got := summarize([]types.Entry{
		{Name: "cache", Kind: types.KindDirectory, Size: 3 * 1024 * 1024 * 1024 / 2},
		{Name: "core", Kind: types.KindFile, Size: 1536},
		{Name: "empty.txt", Kind: types.KindFile},
	})
	assert.Equal(t, "1. [directory] \"cache\" - 1.5GiB\n"+
		"2. [file] \"core\" - 1.5KiB\n"+
		"3. [file] \"empty.txt\" - 0B", got)
}
