package vocabfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
)

var (
	// ErrMissingHeader is returned when RequireHeader is set and the first line is not a header.
	ErrMissingHeader = errors.New("merges: missing #version header")
	// ErrMissingTrailer is returned under TrailerRequire when the text does not end with a newline.
	ErrMissingTrailer = errors.New("merges: missing trailing newline")
)

// TrailerPolicy decides what happens to the final line of a merges file.
// The reference loader always discarded it, which silently loses a rule when
// the file does not end with a newline.
type TrailerPolicy string

const (
	// TrailerKeep drops trailing blank lines and keeps a non-empty final line as a rule.
	TrailerKeep TrailerPolicy = "keep"
	// TrailerRequire rejects files that do not end with a newline.
	TrailerRequire TrailerPolicy = "require"
	// TrailerDrop discards the last line unconditionally.
	TrailerDrop TrailerPolicy = "drop"
)

// ParseTrailerPolicy converts a case-insensitive name to a TrailerPolicy.
// An empty string yields TrailerKeep.
func ParseTrailerPolicy(s string) (TrailerPolicy, error) {
	switch p := TrailerPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return TrailerKeep, nil
	case TrailerKeep, TrailerRequire, TrailerDrop:
		return p, nil
	default:
		return "", fmt.Errorf("invalid merges trailer policy %q (expected %s|%s|%s)", s, TrailerKeep, TrailerRequire, TrailerDrop)
	}
}

// MergesOptions controls merges parsing.
type MergesOptions struct {
	RequireHeader bool
	Trailer       TrailerPolicy
	Logger        *slog.Logger
}

func (o MergesOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ReadMerges parses an ordered list of merge rules, one "left right" pair per line.
func ReadMerges(r io.Reader, opts MergesOptions) ([]bpe.Pair, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read merges: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	first := 1

	if isHeader(lines[0]) {
		if !strings.HasPrefix(lines[0], "#version") {
			opts.logger().Debug("dropping first merges line as header", slog.String("line", lines[0]))
		}
		first = 2
		lines = lines[1:]
	} else if opts.RequireHeader {
		return nil, ErrMissingHeader
	}

	lines, err = applyTrailer(lines, opts)
	if err != nil {
		return nil, err
	}

	pairs := make([]bpe.Pair, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("merges line %d: expected 2 fields, got %d in %q", first+i, len(fields), line)
		}
		pairs = append(pairs, bpe.Pair{Left: fields[0], Right: fields[1]})
	}

	return pairs, nil
}

// isHeader reports whether the first line of a merges file is a header.
// A "#version" line always is. Any other "#" line counts unless it reads as
// a rule, such as "# #".
func isHeader(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	if strings.HasPrefix(line, "#version") {
		return true
	}
	return strings.HasPrefix(line, "#") && len(strings.Fields(line)) != 2
}

func applyTrailer(lines []string, opts MergesOptions) ([]string, error) {
	if len(lines) == 0 {
		return lines, nil
	}
	last := lines[len(lines)-1]

	switch opts.Trailer {
	case TrailerDrop:
		return lines[:len(lines)-1], nil
	case TrailerRequire:
		if last != "" {
			return nil, ErrMissingTrailer
		}
		return lines[:len(lines)-1], nil
	case TrailerKeep, "":
		if strings.TrimSpace(last) != "" {
			opts.logger().Warn("merges file does not end with a newline; keeping final line as a rule",
				slog.String("line", last),
			)
		}
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("unsupported merges trailer policy %q", string(opts.Trailer))
	}
}
