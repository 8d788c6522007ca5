package config

import (
	"fmt"
	"strings"
)

const (
	PretokenizerScanner = "scanner"
	PretokenizerRegex   = "regex"
)

const (
	TrailerKeep    = "keep"
	TrailerRequire = "require"
	TrailerDrop    = "drop"
)

func NormalizePretokenizer(raw string) (string, error) {
	kind := strings.ToLower(strings.TrimSpace(raw))
	if kind == "" {
		kind = PretokenizerScanner
	}
	switch kind {
	case PretokenizerScanner, PretokenizerRegex:
		return kind, nil
	case "regexp", "gpt2":
		return PretokenizerRegex, nil
	default:
		return "", fmt.Errorf(
			"invalid pretokenizer %q (expected %s|%s|regexp|gpt2)",
			raw,
			PretokenizerScanner,
			PretokenizerRegex,
		)
	}
}

// NormalizeTrailer accepts "legacy" as an alias for drop.
func NormalizeTrailer(raw string) (string, error) {
	policy := strings.ToLower(strings.TrimSpace(raw))
	if policy == "" {
		policy = TrailerKeep
	}
	switch policy {
	case TrailerKeep, TrailerRequire, TrailerDrop:
		return policy, nil
	case "legacy":
		return TrailerDrop, nil
	default:
		return "", fmt.Errorf(
			"invalid merges trailer policy %q (expected %s|%s|%s|legacy)",
			raw,
			TrailerKeep,
			TrailerRequire,
			TrailerDrop,
		)
	}
}
