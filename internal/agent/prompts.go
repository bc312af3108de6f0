package agent

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"

	"github.com/lyallcooper/reclaim/internal/types"
)

const classifySystemPrompt = `You are an expert in operating systems and disk space cleanup. Decide for each listed file or directory whether it can be deleted safely.

Rules:
- Operating system files, installed programs, drivers and registry data are "keep".
- Personal documents, photos, media and other user data are "keep".
- Caches, temporary files, build artifacts, logs and stale downloads are usually "safe_to_delete".
- If a name belongs to software you do not recognize and you cannot infer its purpose, answer "needs_search" instead of guessing.
- When unsure about something you do recognize, prefer "suspicious" over "safe_to_delete".

Output format:
Return only a JSON array with no surrounding text. Each element must have exactly these fields:
{
  "index": <number matching the input line>,
  "name": "<file name>",
  "classification": "safe_to_delete" | "suspicious" | "keep" | "needs_search",
  "purpose": "<short description of what the item is for>",
  "reason": "<why it can or cannot be deleted, or why a search is needed>",
  "risk": "low" | "medium" | "high"
}`

const verifySystemPrompt = `You are an expert in operating systems and disk space cleanup. A directory was provisionally judged safe to delete as a whole. Review a summary of its contents and confirm or reject that judgment.

Rules:
- If the contents include anything that looks important (system files, source code, personal documents or media, configuration), the directory is NOT safe to delete as a whole.
- Only approve when the contents are clearly caches, stale build artifacts, logs, temporary files, or the directory is empty.

Output format:
Return only a JSON object with no surrounding text:
{
  "safe": true | false,
  "reason": "<why the directory is or is not safe to delete>"
}`

func classifyUserPrompt(batch []types.Entry, parent string) string {
	return fmt.Sprintf("Analyze the following items located in %q:\n\n%s\n\nReturn the JSON array exactly as specified.",
		parent, summarize(batch))
}

func followUpPrompt(findings []string) string {
	return "Here is the web search information you asked for:\n\n" +
		strings.Join(findings, "\n") +
		"\n\nUsing this information, give a final verdict for the items you classified as \"needs_search\". " +
		"Use the same JSON array format as before, but classification must be one of \"safe_to_delete\", \"suspicious\" or \"keep\"."
}

func verifyUserPrompt(dirName string, children []types.Entry, dirPath string) string {
	listing := summarize(children)
	if listing == "" {
		listing = "(the directory is empty)"
	}
	return fmt.Sprintf("Confirm whether the directory %q (at %q) can be deleted as a whole.\nIts contents:\n\n%s\n\nReturn the JSON object exactly as specified.",
		dirName, dirPath, listing)
}

// summarize renders entries as numbered lines: `1. [file] "name" - 1.2MiB`.
func summarize(entries []types.Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("%d. [%s] %q - %s", i+1, e.Kind, e.Name, units.BytesSize(float64(e.Size)))
	}
	return strings.Join(lines, "\n")
}
