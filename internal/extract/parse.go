package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"recipescan/internal/recipe"
)

var fenceMarker = regexp.MustCompile("```(?:json)?\n?")

// ParseResponse recovers a JSON object from raw model text. It strips code
// fences and leading prose, repairs a truncated tail and decodes the
// result. Anything it cannot decode fails with ErrMalformedResponse.
func ParseResponse(raw string) (map[string]any, error) {
	text := cleanResponse(raw)
	if text == "" {
		return nil, NewError(ErrMalformedResponse, "empty response", nil)
	}

	repaired, err := repairJSON(text)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, NewError(ErrMalformedResponse, "response is not valid JSON", err)
	}
	if obj == nil {
		return nil, NewError(ErrMalformedResponse, "response is not a JSON object", nil)
	}
	return obj, nil
}

func cleanResponse(raw string) string {
	text := strings.TrimSpace(fenceMarker.ReplaceAllString(raw, ""))
	if i := strings.Index(text, "{"); i > 0 {
		text = text[i:]
	}
	return text
}

// repairJSON closes a truncated object. Text that does not end in '}' is cut
// back to its last '}' or ']'; then the missing ']' and '}' are appended,
// brackets first. Counting is naive and includes characters inside strings.
func repairJSON(text string) (string, error) {
	if !strings.HasSuffix(text, "}") {
		last := max(strings.LastIndex(text, "}"), strings.LastIndex(text, "]"))
		if last < 0 {
			return "", NewError(ErrMalformedResponse, "response has no complete value to recover", nil)
		}
		text = text[:last+1]
	}

	missingBrackets := strings.Count(text, "[") - strings.Count(text, "]")
	missingBraces := strings.Count(text, "{") - strings.Count(text, "}")
	return text + strings.Repeat("]", max(missingBrackets, 0)) + strings.Repeat("}", max(missingBraces, 0)), nil
}

// ScrapeNumericFields pulls `"name": <number>` pairs out of raw text for each
// requested name. It returns whatever it finds and never fails.
func ScrapeNumericFields(raw string, names []string) map[string]float64 {
	found := make(map[string]float64, len(names))
	for _, name := range names {
		re, ok := nutritionFieldPatterns[name]
		if !ok {
			re = numericFieldPattern(name)
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		found[name] = v
	}
	return found
}

// nutritionFieldPatterns holds the compiled scrape pattern for every tracked
// nutrition field.
var nutritionFieldPatterns = func() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(recipe.NutritionFields))
	for _, f := range recipe.NutritionFields {
		patterns[string(f)] = numericFieldPattern(string(f))
	}
	return patterns
}()

func numericFieldPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*(\d+(?:\.\d+)?)`)
}
