package workitem

import (
	"fmt"

	"github.com/drover-sh/drover/internal/errors"
	"gopkg.in/yaml.v3"
)

// SubAction is one channel-specific action declared by a cross_post
// parent. The parent body is a YAML list of these.
type SubAction struct {
	Channel string `yaml:"channel"`
	Payload string `yaml:"payload"`
}

// SubActions parses the sub-action list from a cross_post parent's body.
// Returns ErrBadItem for non-cross_post items, unparseable YAML, empty
// lists, or entries without a channel.
func SubActions(it *Item) ([]SubAction, error) {
	if it.Kind != KindCrossPost {
		return nil, fmt.Errorf("%w: %s is not a cross_post item", errors.ErrBadItem, it.ID)
	}

	var actions []SubAction
	if err := yaml.Unmarshal([]byte(it.Body), &actions); err != nil {
		return nil, fmt.Errorf("%w: sub-actions of %s: %v", errors.ErrBadItem, it.ID, err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: %s declares no sub-actions", errors.ErrBadItem, it.ID)
	}

	seen := make(map[string]bool, len(actions))
	for i, a := range actions {
		if a.Channel == "" {
			return nil, fmt.Errorf("%w: sub-action %d of %s has no channel", errors.ErrBadItem, i, it.ID)
		}
		if err := ValidateChannel(a.Channel); err != nil {
			return nil, fmt.Errorf("sub-action %d of %s: %w", i, it.ID, err)
		}
		if seen[a.Channel] {
			return nil, fmt.Errorf("%w: duplicate channel %q in %s", errors.ErrBadItem, a.Channel, it.ID)
		}
		seen[a.Channel] = true
	}
	return actions, nil
}

// EncodeSubActions renders a sub-action list as a cross_post body.
// Used by ingest helpers and tests.
func EncodeSubActions(actions []SubAction) (string, error) {
	data, err := yaml.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("encode sub-actions: %w", err)
	}
	return string(data), nil
}
