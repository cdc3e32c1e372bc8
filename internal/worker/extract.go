package worker

// #region imports
import (
	"encoding/json"
	"strings"
)

// #endregion

// #region extract

// ExtractStructured pulls the first well-formed JSON object out of
// model text. Models often wrap payloads in prose or a fenced block;
// the first balanced object that parses wins. Returns nil when no
// well-formed block exists.
func ExtractStructured(text string) json.RawMessage {
	// Fenced block first: ```json ... ```
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			if raw := firstObject(rest[:end]); raw != nil {
				return raw
			}
		}
	}
	return firstObject(text)
}

// firstObject scans for the first balanced {...} that unmarshals.
func firstObject(text string) json.RawMessage {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					var probe map[string]any
					if json.Unmarshal([]byte(candidate), &probe) == nil {
						return json.RawMessage(candidate)
					}
					i = len(text) // balanced but invalid, move to next '{'
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return nil
		}
		start = start + 1 + next
	}
	return nil
}

// #endregion
