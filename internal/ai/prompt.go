package ai

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Variant identifies a prompt template. The variant participates in
// result fingerprinting, so changing a template's wording without
// renaming the variant would serve stale cached analyses.
type Variant string

const (
	// VariantQuick is a short error-detection prompt for logs with no
	// or few errors.
	VariantQuick Variant = "quick"

	// VariantStandard is the structured root-cause analysis prompt.
	VariantStandard Variant = "standard"

	// VariantDetailed is the comprehensive post-incident prompt for
	// error-dense logs.
	VariantDetailed Variant = "detailed"
)

// SelectVariant picks the prompt template for a document's complexity
// grade.
func SelectVariant(complexity string) Variant {
	switch complexity {
	case "complex":
		return VariantDetailed
	case "simple":
		return VariantQuick
	default:
		return VariantStandard
	}
}

const systemPrompt = `You are an expert Site Reliability Engineer with 10+ years of experience in root cause analysis, incident response, and system debugging. Analyze the provided application logs, identify errors, determine underlying causes, and provide actionable remediation steps. Be precise and evidence-based: reference specific log lines when making claims, prioritize by severity, and base all conclusions on evidence present in the logs.`

const quickPromptTemplate = `Quickly identify critical errors and their root causes.

Analyze these logs and provide:
1. Critical errors (FATAL/ERROR level)
2. Most likely root cause (one sentence)
3. Immediate fix (one actionable step)

Log Format: %s

Logs:
%s

Response format:
ERRORS: [list]
ROOT CAUSE: [explanation]
FIX: [action]`

const standardPromptTemplate = `Analyze the provided logs using systematic root cause analysis methodology:

1. Error Identification: scan chronologically for errors, exceptions, warnings, and failures; categorize by severity; note timestamps and error cascades.
2. Pattern Recognition: group similar errors, identify repeating and temporal patterns, detect correlation between error types.
3. Root Cause Analysis: for each critical error reason through the symptom, the failing component, the underlying cause, and contributing factors. Apply the "5 Whys" technique.
4. Impact Assessment: service availability, data integrity, and user-facing impact.
5. Remediation Plan: immediate actions, short-term fixes, long-term improvements.
6. Prevention: monitoring improvements and early warning signs.

Structure your response as:

=== CRITICAL ERRORS ===
=== ERROR PATTERNS ===
=== ROOT CAUSE ANALYSIS ===
=== IMPACT ASSESSMENT ===
=== REMEDIATION PLAN ===
=== PREVENTION RECOMMENDATIONS ===

Log Context:
- Format: %s
- Complexity: %s

Log Data:

%s

Begin your systematic analysis:`

const detailedPromptTemplate = `Conduct a comprehensive post-incident analysis:

1. Timeline Reconstruction: precise chronological sequence of events with timestamps.
2. Error Chain Mapping: how errors relate, cascade, and propagate through the system.
3. Root Cause Analysis: use the 5 Whys technique to identify primary and contributing causes.
4. Impact Assessment: quantify business, technical, and user impact.
5. Remediation Procedures: detailed, step-by-step fix procedures with rollback plans.
6. Prevention Strategy: monitoring, alerting, testing, and architectural improvements.

Log Format: %s
Complexity: %s

Logs:
%s

Provide a comprehensive incident report with executive summary, technical details, and actionable recommendations.`

// BuildPrompt renders the system and user prompts for one segment.
// The segment text is sanitized against prompt injection before it is
// embedded.
func BuildPrompt(variant Variant, format, complexity, logData string) (system, user string) {
	data := SanitizeLogContent(logData)

	switch variant {
	case VariantQuick:
		return systemPrompt, fmt.Sprintf(quickPromptTemplate, format, data)
	case VariantDetailed:
		return systemPrompt, fmt.Sprintf(detailedPromptTemplate, format, complexity, data)
	default:
		return systemPrompt, fmt.Sprintf(standardPromptTemplate, format, complexity, data)
	}
}

// promptInjectionPatterns contains regex patterns for common prompt
// injection attempts.
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*prompt\s*:`),
	regexp.MustCompile(`(?i)\bASSISTANT\s*:`),
	regexp.MustCompile(`(?i)\bHUMAN\s*:`),
	regexp.MustCompile(`(?i)\bUSER\s*:`),
	regexp.MustCompile(`(?i)\bSYSTEM\s*:`),
}

var excessiveNewlines = regexp.MustCompile(`\n{4,}`)

// SanitizeLogContent sanitizes log content before it is embedded in a
// prompt. It removes non-printable characters (except newlines, tabs,
// carriage returns), masks common prompt injection patterns, and
// collapses excessive blank runs.
func SanitizeLogContent(content string) string {
	var sanitized strings.Builder
	sanitized.Grow(len(content))

	for _, r := range content {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()
	for _, pattern := range promptInjectionPatterns {
		result = pattern.ReplaceAllString(result, "[FILTERED]")
	}

	return excessiveNewlines.ReplaceAllString(result, "\n\n\n")
}

// EstimateTokens approximates the token count of a prompt without
// calling a tokenizer. It takes the larger of a character-based and a
// word-based estimate, which overshoots slightly rather than under.
func EstimateTokens(text string) int {
	byChars := len(text) / 4
	byWords := int(float64(len(strings.Fields(text))) / 0.75)
	if byWords > byChars {
		return byWords
	}
	return byChars
}
