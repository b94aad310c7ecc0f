// Package revision models the base and head commit references a pipeline run works on.
package revision

import (
	"strings"
	"unicode"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
)

// DefaultTagPrefix prefixes the head revision to form the cache tag name.
const DefaultTagPrefix = "sha-"

// ID is an opaque source-control commit reference (a SHA, branch or tag name).
type ID string

func (id ID) String() string { return string(id) }

// Validate rejects references that git would refuse or could misread as an option,
// and references that would not yield a well-formed tag name.
func (id ID) Validate() error {
	s := string(id)
	reject := func(reason string) error {
		return errors.ValidationError("invalid revision: "+reason).
			WithContext("revision", s).
			Build()
	}

	switch {
	case s == "":
		return reject("empty")
	case strings.HasPrefix(s, "-"):
		return reject("must not start with '-'")
	case strings.Contains(s, ".."):
		return reject("must not contain '..'")
	case strings.Contains(s, "@{"):
		return reject("must not contain '@{'")
	case strings.ContainsAny(s, "~^:?*[\\"):
		return reject("contains a character not allowed in git references")
	case strings.HasSuffix(s, ".lock"), strings.HasSuffix(s, "/"), strings.HasSuffix(s, "."):
		return reject("must not end with '.lock', '/' or '.'")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return reject("must not contain whitespace or control characters")
		}
	}
	return nil
}

// Pair is the base and head revision of one pipeline run.
type Pair struct {
	Base ID
	Head ID
}

// NewPair validates both revisions. An empty head defaults to base, which is
// the push-to-main case.
func NewPair(base, head string) (Pair, error) {
	base = strings.TrimSpace(base)
	head = strings.TrimSpace(head)
	if head == "" {
		head = base
	}
	p := Pair{Base: ID(base), Head: ID(head)}
	if err := p.Base.Validate(); err != nil {
		return Pair{}, err
	}
	if err := p.Head.Validate(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

// IsMerge reports whether head has to be merged onto base.
func (p Pair) IsMerge() bool { return p.Base != p.Head }

// TagName returns the cache tag for the head revision.
func (p Pair) TagName(prefix string) string {
	if prefix == "" {
		prefix = DefaultTagPrefix
	}
	return prefix + string(p.Head)
}

// CommitMessage returns the cache commit message naming the head revision.
func (p Pair) CommitMessage() string {
	return "Build for " + string(p.Head)
}
