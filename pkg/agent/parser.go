package agent

import (
	"strconv"
	"strings"
)

// Analysis is the structured interpretation of one router response. The
// router's text contract is line-oriented directives; anything that is not a
// recognized directive is treated as free-form reasoning and ignored.
//
//	CONCLUSION: <best hypothesis description>
//	CONFIDENCE: <float in [0,1]>
//	DRAFT: <proposed reply body>
//	INSIGHT: <observation worth keeping>
//	QUESTION: <open question raised>
//	RESOLVED: <previously open question now answered>
//	UNCERTAINTY: <residual doubt>
type Analysis struct {
	Conclusion string

	// Confidence is -1 when the response carried no CONFIDENCE directive.
	Confidence float64

	// Draft is the proposed reply body, empty when none was offered.
	Draft string

	Insights      []string
	Questions     []string
	Resolved      []string
	Uncertainties []string
}

// HasConfidence reports whether a CONFIDENCE directive was present and valid.
func (a *Analysis) HasConfidence() bool {
	return a.Confidence >= 0
}

// ParseResponse extracts directives from router output. The parser is
// forgiving: directives are matched case-insensitively, surrounding markdown
// emphasis is stripped, and unparseable confidence values are dropped rather
// than failing the pass.
func ParseResponse(text string) *Analysis {
	analysis := &Analysis{Confidence: -1}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.Trim(line, "*_` ")
		if line == "" {
			continue
		}

		directive, value, ok := splitDirective(line)
		if !ok {
			continue
		}
		switch directive {
		case "conclusion":
			// Last conclusion wins; the router may revise mid-response.
			analysis.Conclusion = value
		case "confidence":
			if c, err := strconv.ParseFloat(value, 64); err == nil && c >= 0 && c <= 1 {
				analysis.Confidence = c
			}
		case "draft":
			analysis.Draft = value
		case "insight":
			analysis.Insights = append(analysis.Insights, value)
		case "question":
			analysis.Questions = append(analysis.Questions, value)
		case "resolved":
			analysis.Resolved = append(analysis.Resolved, value)
		case "uncertainty":
			analysis.Uncertainties = append(analysis.Uncertainties, value)
		}
	}
	return analysis
}

// splitDirective splits "NAME: value" lines, lower-casing the name. Markdown
// emphasis hugging either side of the colon is stripped, so "**NAME:** value"
// and "*NAME*: *value*" both parse.
func splitDirective(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	name := strings.ToLower(trimEmphasis(line[:idx]))
	value := trimEmphasis(line[idx+1:])
	if value == "" {
		return "", "", false
	}
	switch name {
	case "conclusion", "confidence", "draft", "insight", "question", "resolved", "uncertainty":
		return name, value, true
	}
	return "", "", false
}

func trimEmphasis(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*_` ")
}
