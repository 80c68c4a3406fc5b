package report

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind classifies an issue.
type Kind string

const (
	Style       Kind = "style"
	Performance Kind = "performance"
	Security    Kind = "security"
	Bug         Kind = "bug"
	Complexity  Kind = "complexity"
	Duplication Kind = "duplication"
	Convention  Kind = "convention"
	Quality     Kind = "quality"
)

// Kinds lists every accepted Kind, in the order used by error messages.
var Kinds = []Kind{Style, Performance, Security, Bug, Complexity, Duplication, Convention, Quality}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// ParseKind converts s to a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", invalidKind(s)
	}
	return k, nil
}

// Issue is a single finding reported by a plugin. Field order matches the
// wire format.
type Issue struct {
	Kind      Kind   `json:"kind"`
	File      string `json:"file"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Message   string `json:"message"`
	UID       string `json:"uid"`
}

// ValidationError describes the first invalid field of an Issue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidKind(k string) *ValidationError {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return &ValidationError{
		Field:   "kind",
		Message: fmt.Sprintf("invalid kind %q; valid options are %s", k, strings.Join(names, ", ")),
	}
}

// Validate checks every field of i. An empty UID is accepted and later
// derived by WithUID; a UID made only of whitespace is rejected.
func (i Issue) Validate() error {
	if !i.Kind.Valid() {
		return invalidKind(string(i.Kind))
	}
	if strings.TrimSpace(i.File) == "" {
		return &ValidationError{Field: "file", Message: "file must be a non-empty string"}
	}
	if i.LineStart < 1 {
		return &ValidationError{Field: "line_start", Message: "line_start must be an integer greater than zero"}
	}
	if i.LineEnd < 1 {
		return &ValidationError{Field: "line_end", Message: "line_end must be an integer greater than zero"}
	}
	if i.LineEnd < i.LineStart {
		return &ValidationError{Field: "line_end", Message: "line_end must be greater than or equal to line_start"}
	}
	if strings.TrimSpace(i.Message) == "" {
		return &ValidationError{Field: "message", Message: "message must be a non-empty string"}
	}
	if i.UID != "" && strings.TrimSpace(i.UID) == "" {
		return &ValidationError{Field: "uid", Message: "uid must be a non-empty string when provided"}
	}
	return nil
}

// WithUID returns i with UID filled in when it was empty.
func (i Issue) WithUID() Issue {
	if i.UID == "" {
		i.UID = i.ComputeUID()
	}
	return i
}

// ComputeUID derives a stable identifier from the other fields. The same
// issue at the same location always yields the same UID.
func (i Issue) ComputeUID() string {
	var b strings.Builder
	b.WriteString("kind")
	b.WriteString(string(i.Kind))
	b.WriteString("file")
	b.WriteString(i.File)
	b.WriteString("line_start")
	b.WriteString(strconv.Itoa(i.LineStart))
	b.WriteString("line_end")
	b.WriteString(strconv.Itoa(i.LineEnd))
	b.WriteString("message")
	b.WriteString(i.Message)
	return SHA1([]byte(b.String()))
}

// SHA1 returns the hex-encoded SHA-1 digest of data.
func SHA1(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
