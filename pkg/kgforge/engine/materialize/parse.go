package materialize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedBlockPattern matches a ``` or ```json fenced code block.
var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseModelOutput parses model text as JSON, first trying a fenced code
// block and then the trimmed whole string. On failure the text is wrapped as
// {"raw_output": <text>}; this function never fails, since malformed model
// output is an expected occurrence.
func ParseModelOutput(text string) interface{} {
	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		var parsed interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &parsed); err == nil {
			return parsed
		}
	}

	trimmed := strings.TrimSpace(text)
	var parsed interface{}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
		return parsed
	}

	return map[string]interface{}{"raw_output": text}
}
