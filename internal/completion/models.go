package completion

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedModel = errors.New("completion: unsupported model")

// ModelSet is the closed set of upstream models a request may select.
type ModelSet struct {
	defaultModel string
	allowed      map[string]struct{}
	ordered      []string
}

func NewModelSet(defaultModel string, models []string) (*ModelSet, error) {
	set := &ModelSet{allowed: make(map[string]struct{}, len(models))}
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := set.allowed[m]; dup {
			continue
		}
		set.allowed[m] = struct{}{}
		set.ordered = append(set.ordered, m)
	}
	if len(set.ordered) == 0 {
		return nil, errors.New("completion: at least one model is required")
	}

	defaultModel = strings.TrimSpace(defaultModel)
	if _, ok := set.allowed[defaultModel]; !ok {
		return nil, fmt.Errorf("completion: default model %q is not allowed", defaultModel)
	}
	set.defaultModel = defaultModel
	return set, nil
}

// Resolve maps a requested model to an allowed one. Empty selects the
// default.
func (s *ModelSet) Resolve(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return s.defaultModel, nil
	}
	if _, ok := s.allowed[requested]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, requested)
	}
	return requested, nil
}

func (s *ModelSet) Default() string { return s.defaultModel }

func (s *ModelSet) Models() []string {
	return append([]string(nil), s.ordered...)
}
