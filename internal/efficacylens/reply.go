package efficacylens

import (
	"encoding/json"
	"fmt"
	"strings"
)

const fence = "```"

// schemaCheck inspects a decoded reply document. It returns non-fatal
// warnings, or an error when a required key is absent.
type schemaCheck func(doc map[string]any) ([]string, error)

// ExtractPayload recovers the JSON object embedded in a model reply. A fenced
// block wins over surrounding prose; without a usable fence the span from the
// first '{' to the last '}' is used.
func ExtractPayload(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", errEmptyReply
	}
	if body, ok := fencedBlock(text); ok {
		if json.Valid([]byte(body)) {
			return body, nil
		}
		if span, ok := braceSpan(body); ok && json.Valid([]byte(span)) {
			return span, nil
		}
		// The fence marker may sit inside a string of an unfenced reply.
		if span, ok := braceSpan(text); ok && json.Valid([]byte(span)) {
			return span, nil
		}
		return "", fmt.Errorf("fenced block is not valid JSON")
	}
	span, ok := braceSpan(text)
	if !ok {
		return "", errNoJSON
	}
	if !json.Valid([]byte(span)) {
		return "", fmt.Errorf("brace-delimited span is not valid JSON")
	}
	return span, nil
}

func fencedBlock(text string) (string, bool) {
	start, skip := jsonFence(text), len(fence)+len("json")
	if start == -1 {
		start = strings.Index(text, fence)
		if start == -1 {
			return "", false
		}
		skip = len(fence)
		// Bare fence: drop an info string such as "javascript" up to the newline.
		if nl := strings.IndexByte(text[start+skip:], '\n'); nl != -1 && !strings.ContainsAny(text[start+skip:start+skip+nl], "{}") {
			skip += nl
		}
	}
	body := text[start+skip:]
	if end := strings.Index(body, fence); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body), true
}

// jsonFence returns the offset of the first fence tagged json in any case.
func jsonFence(text string) int {
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], fence)
		if j == -1 {
			return -1
		}
		pos := i + j
		tag := text[pos+len(fence):]
		if len(tag) >= 4 && strings.EqualFold(tag[:4], "json") {
			return pos
		}
		i = pos + len(fence)
	}
	return -1
}

func braceSpan(text string) (string, bool) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return "", false
	}
	return text[first : last+1], true
}

// DecodeReply extracts, schema-checks and decodes a reply into out. Every
// failure is a *MalformedResponseError carrying a bounded preview of raw.
func DecodeReply(stage, raw string, out any, check schemaCheck) ([]string, error) {
	payload, err := ExtractPayload(raw)
	if err != nil {
		return nil, &MalformedResponseError{Stage: stage, Preview: preview(raw), Err: err}
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, &MalformedResponseError{Stage: stage, Preview: preview(raw), Err: fmt.Errorf("payload is not a JSON object: %w", err)}
	}
	var warnings []string
	if check != nil {
		warnings, err = check(doc)
		if err != nil {
			return nil, &MalformedResponseError{Stage: stage, Preview: preview(raw), Err: fmt.Errorf("schema: %w", err)}
		}
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return nil, &MalformedResponseError{Stage: stage, Preview: preview(raw), Err: fmt.Errorf("decode: %w", err)}
	}
	return warnings, nil
}
