// Package agent asks a chat model to classify directory entries and to
// confirm that whole directories can be removed.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/llm"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/search"
	"github.com/lyallcooper/reclaim/internal/types"
)

// Temperature is used for every exchange.
const Temperature = 0.1

const (
	failedPurpose    = "analysis failed, manual review recommended"
	missingPurpose   = "no verdict returned, manual review recommended"
	downgradeSuffix  = " (web search unavailable, downgraded to suspicious)"
	unresolvedSuffix = " (no verdict after web search, downgraded to suspicious)"
	noInfo           = "no clear information found"
	verifyFailPrefix = "verification failed: "
)

// Trace carries diagnostics for one classification or verification.
type Trace struct {
	Model          string        `json:"model"`
	SystemPrompt   string        `json:"systemPrompt"`
	UserPrompt     string        `json:"userPrompt"`
	FollowUpPrompt string        `json:"followUpPrompt,omitempty"`
	Reasoning      string        `json:"reasoning"`
	RawContent     string        `json:"rawContent"`
	Elapsed        time.Duration `json:"-"`
	Error          string        `json:"error,omitempty"`
}

// ClassifyResult is the outcome of Classify. Verdicts has exactly one
// element per submitted entry, in batch order.
type ClassifyResult struct {
	Verdicts []types.Verdict
	Usage    types.TokenUsage
	Trace    Trace
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Safe   bool
	Reason string
	Usage  types.TokenUsage
	Trace  Trace
}

// Agent classifies entries with a chat model. A nil searcher disables the
// web search follow-up.
type Agent struct {
	chat   llm.ChatClient
	search search.Searcher
	logger *zap.Logger
}

// New creates an Agent.
func New(chat llm.ChatClient, searcher search.Searcher, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{chat: chat, search: searcher, logger: logger}
}

// SearchEnabled reports whether needs_search verdicts get a follow-up.
func (a *Agent) SearchEnabled() bool {
	return a.search != nil
}

// rawVerdict is a verdict as the model wrote it, before validation.
type rawVerdict struct {
	Index          flexInt `json:"index"`
	Name           string  `json:"name"`
	Classification string  `json:"classification"`
	Purpose        string  `json:"purpose"`
	Reason         string  `json:"reason"`
	Risk           string  `json:"risk"`
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

// Classify asks the model about batch, entries of the directory parent.
// It never returns an error: failures are folded into high-risk
// suspicious verdicts and recorded in the trace.
func (a *Agent) Classify(ctx context.Context, batch []types.Entry, parent string) *ClassifyResult {
	start := time.Now()
	res := &ClassifyResult{
		Trace: Trace{
			Model:        a.chat.Model(),
			SystemPrompt: classifySystemPrompt,
			UserPrompt:   classifyUserPrompt(batch, parent),
		},
	}

	err := a.classify(ctx, batch, res)
	res.Trace.Elapsed = time.Since(start)
	metrics.RecordOracleCall("classify", res.Trace.Elapsed, err)
	metrics.RecordTokens(res.Usage.Prompt, res.Usage.Completion)

	if err != nil {
		a.logger.Warn("classification failed",
			zap.String("parent", parent), zap.Int("entries", len(batch)), zap.Error(err))
		res.Trace.Error = err.Error()
		res.Verdicts = failAll(batch, err)
	}
	return res
}

func (a *Agent) classify(ctx context.Context, batch []types.Entry, res *ClassifyResult) error {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: res.Trace.SystemPrompt},
		{Role: llm.RoleUser, Content: res.Trace.UserPrompt},
	}

	first, err := a.chat.Chat(ctx, msgs, Temperature)
	if err != nil {
		return err
	}
	res.Usage.Add(first.Usage)
	res.Trace.Model = first.Model
	res.Trace.Reasoning = first.Reasoning
	res.Trace.RawContent = first.Content

	raw, err := llm.DecodeArray[rawVerdict](first.Content)
	if err != nil {
		return err
	}
	verdicts := merge(make([]*types.Verdict, len(batch)), raw, batch)

	suffix := downgradeSuffix
	pending := pendingSearch(verdicts)
	if len(pending) > 0 && a.search != nil {
		suffix = unresolvedSuffix
		findings := make([]string, 0, len(pending))
		for _, i := range pending {
			name := batch[i].Name
			summary, err := a.search.Lookup(ctx, name)
			if err != nil || strings.TrimSpace(summary) == "" {
				summary = noInfo
			}
			findings = append(findings, fmt.Sprintf("- %q: %s", name, summary))
		}

		res.Trace.FollowUpPrompt = followUpPrompt(findings)
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: llm.StripFences(first.Content)},
			llm.Message{Role: llm.RoleUser, Content: res.Trace.FollowUpPrompt},
		)
		second, err := a.chat.Chat(ctx, msgs, Temperature)
		if err != nil {
			return fmt.Errorf("follow-up: %w", err)
		}
		res.Usage.Add(second.Usage)
		res.Trace.Reasoning = joinNonEmpty(res.Trace.Reasoning, second.Reasoning)
		res.Trace.RawContent = joinNonEmpty(res.Trace.RawContent, second.Content)

		raw, err := llm.DecodeArray[rawVerdict](second.Content)
		if err != nil {
			return fmt.Errorf("follow-up: %w", err)
		}
		verdicts = merge(verdicts, raw, batch)
	}

	res.Verdicts = finalize(verdicts, batch, suffix)
	return nil
}

// merge validates raw verdicts and stores them by index, replacing any
// verdict already present for that index.
func merge(dst []*types.Verdict, raw []rawVerdict, batch []types.Entry) []*types.Verdict {
	for pos, r := range raw {
		idx := int(r.Index)
		if idx == 0 && len(raw) == len(batch) {
			idx = pos + 1
		}
		if idx < 1 || idx > len(batch) {
			continue
		}

		v := &types.Verdict{
			Index:          idx,
			Name:           batch[idx-1].Name,
			Classification: types.Classification(strings.ToLower(strings.TrimSpace(r.Classification))),
			Purpose:        r.Purpose,
			Reason:         r.Reason,
			Risk:           types.Risk(strings.ToLower(strings.TrimSpace(r.Risk))),
		}
		if !v.Classification.Valid() {
			v.Classification = types.Suspicious
		}
		if !v.Risk.Valid() {
			v.Risk = types.RiskMedium
		}
		dst[idx-1] = v
	}
	return dst
}

func pendingSearch(verdicts []*types.Verdict) []int {
	var out []int
	for i, v := range verdicts {
		if v != nil && v.Classification == types.NeedsSearch {
			out = append(out, i)
		}
	}
	return out
}

// finalize fills gaps and downgrades anything still waiting on a search,
// appending suffix to its reason.
func finalize(verdicts []*types.Verdict, batch []types.Entry, suffix string) []types.Verdict {
	out := make([]types.Verdict, len(batch))
	for i, v := range verdicts {
		if v == nil {
			out[i] = types.Verdict{
				Index:          i + 1,
				Name:           batch[i].Name,
				Classification: types.Suspicious,
				Purpose:        missingPurpose,
				Reason:         "the model returned no verdict for this entry",
				Risk:           types.RiskHigh,
			}
			continue
		}
		out[i] = *v
		if out[i].Classification == types.NeedsSearch {
			out[i].Classification = types.Suspicious
			out[i].Reason += suffix
		}
	}
	return out
}

func failAll(batch []types.Entry, err error) []types.Verdict {
	out := make([]types.Verdict, len(batch))
	for i, e := range batch {
		out[i] = types.Verdict{
			Index:          i + 1,
			Name:           e.Name,
			Classification: types.Suspicious,
			Purpose:        failedPurpose,
			Reason:         err.Error(),
			Risk:           types.RiskHigh,
		}
	}
	return out
}

// Verify asks the model whether the directory at dirPath, with the given
// children, can be deleted as a whole. Any failure yields Safe=false.
func (a *Agent) Verify(ctx context.Context, dirName string, children []types.Entry, dirPath string) *VerifyResult {
	start := time.Now()
	res := &VerifyResult{
		Trace: Trace{
			Model:        a.chat.Model(),
			SystemPrompt: verifySystemPrompt,
			UserPrompt:   verifyUserPrompt(dirName, children, dirPath),
		},
	}

	err := a.verify(ctx, res)
	res.Trace.Elapsed = time.Since(start)
	metrics.RecordOracleCall("verify", res.Trace.Elapsed, err)
	metrics.RecordTokens(res.Usage.Prompt, res.Usage.Completion)

	if err != nil {
		a.logger.Warn("verification failed", zap.String("dir", dirPath), zap.Error(err))
		res.Safe = false
		res.Reason = verifyFailPrefix + err.Error()
		res.Trace.Error = err.Error()
	}
	return res
}

func (a *Agent) verify(ctx context.Context, res *VerifyResult) error {
	out, err := a.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: res.Trace.SystemPrompt},
		{Role: llm.RoleUser, Content: res.Trace.UserPrompt},
	}, Temperature)
	if err != nil {
		return err
	}
	res.Usage.Add(out.Usage)
	res.Trace.Model = out.Model
	res.Trace.Reasoning = out.Reasoning
	res.Trace.RawContent = out.Content

	var parsed struct {
		Safe   json.RawMessage `json:"safe"`
		Reason string          `json:"reason"`
	}
	if err := llm.DecodeObject(out.Content, &parsed); err != nil {
		return err
	}
	res.Safe = strings.TrimSpace(string(parsed.Safe)) == "true"
	res.Reason = parsed.Reason
	return nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
