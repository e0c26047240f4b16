// Package derived contains the built-in derived-view handlers.
package derived

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/groblegark/ksilo/internal/trigger"
)

// Structure and type coordinates the comments-on-profile handler works with.
const (
	StructureComments = "simplecomments"
	StructureProfile  = "profile"
	TypeComment       = "comment"
)

// CommentsOnProfile mirrors every comment a user writes onto that user's
// profile instance, so a profile page can list the user's comments without
// scanning every conversation. The mirrored copy carries the source
// structure and instance both as a back-reference and inside the value.
type CommentsOnProfile struct {
	logger *slog.Logger
}

// NewCommentsOnProfile creates the handler.
func NewCommentsOnProfile(logger *slog.Logger) *CommentsOnProfile {
	return &CommentsOnProfile{logger: logger}
}

// Register attaches the handler to comment writes.
func (h *CommentsOnProfile) Register(reg *trigger.Registry) error {
	return reg.Register(StructureComments, TypeComment, h)
}

func (h *CommentsOnProfile) Name() string { return "comments-on-profile" }

// Handle copies the comment to (profile, <author>, comment, <key>). Writes
// without an author are skipped. The handler is idempotent: replaying the
// same write produces the same derived row.
func (h *CommentsOnProfile) Handle(ctx context.Context, ev trigger.WriteEvent) error {
	var comment struct {
		From string `json:"from"`
	}
	if err := json.Unmarshal(ev.Write.Value, &comment); err != nil {
		return fmt.Errorf("decode comment %s: %w", ev.Write.Ref.Key, err)
	}
	if comment.From == "" {
		h.logger.Debug("derived: comment has no author, skipping",
			"key", ev.Write.Ref.Key, "instance", ev.Write.Ref.Instance)
		return nil
	}

	value, err := stampSource(ev.Write.Value, ev.Write.Ref.Structure, ev.Write.Ref.Instance)
	if err != nil {
		return fmt.Errorf("stamp comment %s: %w", ev.Write.Ref.Key, err)
	}

	return ev.Scope.SetDerivedObject(ctx, StructureProfile, comment.From, TypeComment, ev.Write.Ref.Key, value)
}

// stampSource embeds the source coordinates into the mirrored value so a
// reader of the profile copy can link back to the conversation it came from.
func stampSource(value json.RawMessage, structure, instance string) (json.RawMessage, error) {
	var fields map[string]any
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, err
	}
	fields["structureKey"] = structure
	fields["instanceKey"] = instance
	return json.Marshal(fields)
}

var _ trigger.Handler = (*CommentsOnProfile)(nil)
