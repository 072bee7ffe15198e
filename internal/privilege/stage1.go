package privilege

import "strings"

// Stage1Result is the outcome of running a Policy's rules against one
// document.
type Stage1Result struct {
	Labels     []string
	Confidence float64
	// Conclusive is true when a rule marked conclusive=true matched,
	// meaning the document is conclusively classified by Stage 1 alone
	// regardless of confidence (spec §4.8).
	Conclusive bool
}

// Document is the minimal view of a document Stage 1 needs: its header
// block (if any) and its extracted body text.
type Document struct {
	Headers string
	Text    string
}

// EvaluateStage1 runs every rule in p against doc, returning the union of
// matched labels and the highest matched weight as confidence. A
// conclusive match short-circuits further evaluation.
func EvaluateStage1(p *Policy, doc Document) Stage1Result {
	headers := strings.ToLower(doc.Headers)
	body := strings.ToLower(doc.Text)
	combined := headers + "\n" + body

	var result Stage1Result
	seen := make(map[string]bool)

	for _, rule := range p.Rules {
		matched := false
		switch rule.Kind {
		case "domain":
			matched = strings.Contains(headers, rule.Match) || strings.Contains(body, rule.Match)
		case "header":
			matched = strings.Contains(headers, rule.Match)
		case "phrase":
			matched = strings.Contains(combined, rule.Match)
		}
		if !matched {
			continue
		}

		if !seen[rule.Label] {
			seen[rule.Label] = true
			result.Labels = append(result.Labels, rule.Label)
		}
		if rule.Weight > result.Confidence {
			result.Confidence = rule.Weight
		}
		if rule.Conclusive {
			result.Conclusive = true
			return result
		}
	}
	return result
}
