// Package knowledgebase retrieves curated facts for the current turn. Entries
// are prefiltered by literal or regular expression keys against the recent
// conversation, ranked by TF-IDF similarity, then ordered by budget priority
// and trimmed to their token budgets.
package knowledgebase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Defaults applied to new entries.
const (
	DefaultSearchRange    = 1000
	DefaultTokenBudget    = 250
	DefaultBudgetPriority = 400

	// PrivateKey marks an entry as private in category listings.
	PrivateKey = "private entry"

	EntryIDPrefix    = "kbe"
	CategoryIDPrefix = "kbc"
)

var (
	ErrEntryNotFound    = errors.New("knowledge base entry not found")
	ErrCategoryNotFound = errors.New("knowledge base category not found")
	ErrDuplicateTitle   = errors.New("knowledge base entry with this title already exists")
	ErrNoChanges        = errors.New("no changes requested")
)

// Entry is one knowledge base fact.
type Entry struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	TextContent     string   `json:"text_content"`
	Keys            []string `json:"keys"`
	CategoryID      string   `json:"category_id,omitempty"`
	Enabled         bool     `json:"enabled"`
	ForceActivation bool     `json:"force_activation"`
	KeyRelative     bool     `json:"key_relative"`
	Hidden          bool     `json:"hidden"`
	// SearchRange is how many trailing characters of the window keys are tested against; 0 means all
	SearchRange    int   `json:"search_range"`
	TokenBudget    int   `json:"token_budget"`
	BudgetPriority int   `json:"budget_priority"`
	LastUpdatedAt  int64 `json:"last_updated_at"`
}

// IsPrivate reports whether the entry carries the private key.
func (e Entry) IsPrivate() bool {
	for _, k := range e.Keys {
		if k == PrivateKey {
			return true
		}
	}
	return false
}

// Validate checks the fields a stored entry must have.
func (e Entry) Validate() error {
	var result error
	if e.ID == "" {
		result = multierror.Append(result, errors.New("id is required"))
	}
	if strings.TrimSpace(e.DisplayName) == "" {
		result = multierror.Append(result, errors.New("display name is required"))
	}
	if strings.TrimSpace(e.TextContent) == "" {
		result = multierror.Append(result, errors.New("text content is required"))
	}
	if e.TokenBudget < 0 {
		result = multierror.Append(result, fmt.Errorf("token budget cannot be negative, got %d", e.TokenBudget))
	}
	for _, k := range e.Keys {
		if _, err := compileKey(k); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Category groups entries for browsing.
type Category struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	OrderIndex int    `json:"order_index"`
}

// LabeledEntry is an entry as shown in a category listing.
type LabeledEntry struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// keyMatcher tests one key against a window.
type keyMatcher func(window string) bool

var regexKey = regexp.MustCompile(`^/(.+)/([is]*)$`)

// compileKey turns a key into a matcher. "/pattern/flags" keys whose flags are
// only i and s are regular expressions; anything else, "/usr/bin" included, is
// a case-insensitive literal substring.
func compileKey(key string) (keyMatcher, error) {
	m := regexKey.FindStringSubmatch(key)
	if m == nil {
		literal := strings.ToLower(key)
		return func(window string) bool { return strings.Contains(strings.ToLower(window), literal) }, nil
	}

	pattern, flags := m[1], m[2]
	prefix := ""
	for _, f := range flags {
		if !strings.ContainsRune(prefix, f) {
			prefix += string(f)
		}
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	return re.MatchString, nil
}

// lowerKeys trims and lowercases tags. Regular expression keys keep their
// case; a pattern like \D would change meaning.
func lowerKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		switch {
		case k == "":
		case regexKey.MatchString(k):
			out = append(out, k)
		default:
			out = append(out, strings.ToLower(k))
		}
	}
	return out
}
