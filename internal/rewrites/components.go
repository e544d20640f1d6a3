// Package rewrites maps semantic component/action identifiers onto public
// URLs. Each URL segment is addressed by a rewrite ID whose slug can be
// customised, and a component's directory page anchors its permalinks.
package rewrites

import "strings"

const (
	ComponentMembers  = "members"
	ComponentActivity = "activity"

	SubComponentProfile  = "profile"
	SubComponentFriends  = "friends"
	SubComponentActivity = "activity"
)

// Action is a named screen within a member sub-component.
type Action struct {
	ID          string
	DefaultSlug string
}

// SubComponent is a section of a single item's pages, e.g. a member's friends.
type SubComponent struct {
	ID          string
	DefaultSlug string
	Actions     []Action
}

// Component is a top-level area with a directory and single items.
type Component struct {
	ID                   string
	Name                 string
	DefaultDirectorySlug string
	DirectoryRewriteID   string
	SingleItemRewriteID  string
	SubComponents        []SubComponent
}

// DefaultComponents returns the components served by Kinship.
func DefaultComponents() []Component {
	return []Component{
		{
			ID:                   ComponentMembers,
			Name:                 "Members",
			DefaultDirectorySlug: "members",
			DirectoryRewriteID:   "kinship_members",
			SingleItemRewriteID:  "kinship_member",
			SubComponents: []SubComponent{
				{ID: SubComponentActivity, DefaultSlug: "activity", Actions: []Action{
					{ID: "friends", DefaultSlug: "friends"},
					{ID: "mentions", DefaultSlug: "mentions"},
				}},
				{ID: SubComponentProfile, DefaultSlug: "profile", Actions: []Action{
					{ID: "edit", DefaultSlug: "edit"},
					{ID: "change-avatar", DefaultSlug: "change-avatar"},
				}},
				{ID: SubComponentFriends, DefaultSlug: "friends", Actions: []Action{
					{ID: "requests", DefaultSlug: "requests"},
					{ID: "mutual", DefaultSlug: "mutual"},
				}},
			},
		},
		{
			ID:                   ComponentActivity,
			Name:                 "Activity",
			DefaultDirectorySlug: "activity",
			DirectoryRewriteID:   "kinship_activities",
			SingleItemRewriteID:  "kinship_activity",
		},
	}
}

// SubComponentRewriteID returns the rewrite ID for a sub-component slug.
func (c Component) SubComponentRewriteID(subID string) string {
	return c.SingleItemRewriteID + "_" + rewriteKey(subID)
}

// ActionRewriteID returns the rewrite ID for an action slug.
func (c Component) ActionRewriteID(subID, actionID string) string {
	return c.SubComponentRewriteID(subID) + "_" + rewriteKey(actionID)
}

func (c Component) componentVar() string { return c.SingleItemRewriteID + "_component" }
func (c Component) actionVar() string    { return c.SingleItemRewriteID + "_action" }
func (c Component) variablesVar() string { return c.SingleItemRewriteID + "_action_variables" }

func (c Component) subComponent(id string) (SubComponent, bool) {
	for _, sub := range c.SubComponents {
		if sub.ID == id {
			return sub, true
		}
	}
	return SubComponent{}, false
}

// RewriteIDs lists every rewrite ID owned by the component.
func (c Component) RewriteIDs() []string {
	ids := []string{c.DirectoryRewriteID}
	for _, sub := range c.SubComponents {
		ids = append(ids, c.SubComponentRewriteID(sub.ID))
		for _, action := range sub.Actions {
			ids = append(ids, c.ActionRewriteID(sub.ID, action.ID))
		}
	}
	return ids
}

func rewriteKey(id string) string {
	return strings.ReplaceAll(Sanitize(id), "-", "_")
}

// Sanitize turns free text into a URL slug: lowercase ASCII letters, digits
// and single dashes.
func Sanitize(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || r == ' ' || r == '.':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
