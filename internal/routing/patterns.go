package routing

import (
	"regexp"

	"github.com/harborline/backend-tracking/internal/provider"
)

// Pattern ties a tracking-number format to the carrier it most likely
// belongs to. Patterns are evaluated in priority order; the highest-confidence
// match wins.
type Pattern struct {
	Carrier    string
	Provider   string
	Regex      *regexp.Regexp
	Kind       provider.Kind
	Confidence float64
	Priority   int
}

// DefaultPatterns covers the BIC owner prefixes of the integrated carriers
// plus generic ISO 6346 and booking/BOL heuristics.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Carrier: "Maersk", Provider: "maersk", Regex: regexp.MustCompile(`^(MAEU|MRKU|MSKU|MRSU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "MSC", Provider: "msc", Regex: regexp.MustCompile(`^(MSCU|MEDU|MSDU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "CMA CGM", Provider: "cmacgm", Regex: regexp.MustCompile(`^(CMAU|CGMU|CGHU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "Hapag-Lloyd", Provider: "hapag", Regex: regexp.MustCompile(`^(HLCU|HLXU|HPLU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "COSCO", Provider: "cosco", Regex: regexp.MustCompile(`^(COSU|CBHU|CSLU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "Evergreen", Provider: "evergreen", Regex: regexp.MustCompile(`^(EGLV|EISU|EGHU)\d{7}$`), Kind: provider.KindContainer, Confidence: 0.95, Priority: 1},
		{Carrier: "Maersk", Provider: "maersk", Regex: regexp.MustCompile(`^\d{9}$`), Kind: provider.KindBooking, Confidence: 0.5, Priority: 3},
		{Carrier: "CMA CGM", Provider: "cmacgm", Regex: regexp.MustCompile(`^[A-Z]{3}\d{7}[A-Z]?$`), Kind: provider.KindBOL, Confidence: 0.55, Priority: 3},
		// Generic ISO 6346 container: any BIC owner code ending in U.
		{Carrier: "", Provider: "", Regex: regexp.MustCompile(`^[A-Z]{3}U\d{7}$`), Kind: provider.KindContainer, Confidence: 0.6, Priority: 5},
	}
}

// match is the outcome of running the pattern list over a number.
type match struct {
	carrier    string
	provider   string
	kind       provider.Kind
	confidence float64
	matched    bool
	heuristic  bool
}

func matchNumber(patterns []Pattern, number string) match {
	best := match{}
	for _, p := range patterns {
		if !p.Regex.MatchString(number) {
			continue
		}
		if !best.matched || p.Confidence > best.confidence {
			best = match{
				carrier:    p.Carrier,
				provider:   p.Provider,
				kind:       p.Kind,
				confidence: p.Confidence,
				matched:    true,
			}
		}
	}
	if best.matched {
		return best
	}
	return heuristicMatch(number)
}

// heuristicMatch guesses a kind from length and character classes when no
// pattern fires. Confidence stays low so routing falls back to reliability.
func heuristicMatch(number string) match {
	digits, letters := 0, 0
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'A' && r <= 'Z':
			letters++
		}
	}
	switch {
	case letters == 0 && digits >= 8 && digits <= 12:
		return match{kind: provider.KindBooking, confidence: 0.3, matched: false, heuristic: true}
	case letters >= 2 && digits >= 6 && len(number) >= 10:
		return match{kind: provider.KindBOL, confidence: 0.25, matched: false, heuristic: true}
	default:
		return match{kind: provider.KindAuto, confidence: 0.1, matched: false, heuristic: true}
	}
}
