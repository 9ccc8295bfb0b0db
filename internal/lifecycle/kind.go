// Package lifecycle holds the document lifecycle engine shared by feedback
// forms, receipts, paths and walls: state enumerations, the per-kind
// transition tables, and the pure action executor.
package lifecycle

import "strings"

// Kind identifies a document resource.
type Kind string

const (
	KindFeedback Kind = "feedback"
	KindReceipt  Kind = "receipt"
	KindPath     Kind = "path"
	KindWall     Kind = "wall"
)

// Kinds lists every resource kind in a stable order.
var Kinds = []Kind{KindFeedback, KindReceipt, KindPath, KindWall}

// Collection is the plural name used in URLs and exports.
func (k Kind) Collection() string {
	switch k {
	case KindFeedback:
		return "feedback"
	case KindReceipt:
		return "receipts"
	case KindPath:
		return "paths"
	case KindWall:
		return "walls"
	default:
		return ""
	}
}

func (k Kind) IsValid() bool {
	return k.Collection() != ""
}

// ParseCollection maps a URL collection segment back to its kind.
func ParseCollection(value string) (Kind, bool) {
	for _, kind := range Kinds {
		if kind.Collection() == strings.ToLower(strings.TrimSpace(value)) {
			return kind, true
		}
	}
	return "", false
}

// State is a member of a kind's state enumeration.
type State string

const (
	StateDraft      State = "draft"
	StateSent       State = "sent"
	StateCompleted  State = "completed"
	StateOverdue    State = "overdue"
	StateCancelled  State = "cancelled"
	StateUnassigned State = "unassigned"
	StateSettled    State = "settled"
	StatePublished  State = "published"
)

// Action is a named operation a caller may request against a document.
type Action string

const (
	ActionDelete      Action = "delete"
	ActionAssign      Action = "assign"
	ActionUnassign    Action = "unassign"
	ActionSend        Action = "send"
	ActionComplete    Action = "complete"
	ActionSettle      Action = "settle"
	ActionCancel      Action = "cancel"
	ActionRestart     Action = "restart"
	ActionPublish     Action = "publish"
	ActionUnpublish   Action = "unpublish"
	ActionMakePublic  Action = "make_public"
	ActionMakePrivate Action = "make_private"
)

var knownActions = map[Action]struct{}{
	ActionDelete:      {},
	ActionAssign:      {},
	ActionUnassign:    {},
	ActionSend:        {},
	ActionComplete:    {},
	ActionSettle:      {},
	ActionCancel:      {},
	ActionRestart:     {},
	ActionPublish:     {},
	ActionUnpublish:   {},
	ActionMakePublic:  {},
	ActionMakePrivate: {},
}

func (a Action) IsKnown() bool {
	_, ok := knownActions[a]
	return ok
}
