package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// Feed scopes.
const (
	ScopeSitewide = "sitewide"
	ScopeJustMe   = "just-me"
	ScopeFriends  = "friends"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// maxPage keeps (page-1)*perPage far from integer overflow.
	maxPage = 100000
)

// FeedFilter selects one page of a feed. Pages start at 1.
type FeedFilter struct {
	Scope   string
	UserID  string
	Page    int
	PerPage int
}

// Entry is an activity prepared for display.
type Entry struct {
	models.Activity
	Permalink string `json:"permalink"`
	TimeSince string `json:"timeSince"`
}

// Feed returns activities newest first. The sitewide feed omits hidden
// activities; the friends feed shows activities by the member's friends.
func (r *Recorder) Feed(ctx context.Context, filter FeedFilter) ([]models.Activity, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}

	query := models.ActivityQuery{Limit: perPage, Offset: (page - 1) * perPage}
	switch filter.Scope {
	case ScopeSitewide, "":
		query.ExcludeHidden = true
	case ScopeJustMe:
		if filter.UserID == "" {
			return nil, fmt.Errorf("feed scope %q requires a member", filter.Scope)
		}
		query.UserIDs = []string{filter.UserID}
	case ScopeFriends:
		if filter.UserID == "" {
			return nil, fmt.Errorf("feed scope %q requires a member", filter.Scope)
		}
		ids, err := r.friends.FriendIDs(ctx, filter.UserID)
		if err != nil {
			return nil, fmt.Errorf("list friends: %w", err)
		}
		if len(ids) == 0 {
			return []models.Activity{}, nil
		}
		query.UserIDs = ids
	default:
		return nil, fmt.Errorf("unknown feed scope %q", filter.Scope)
	}

	activities, err := r.store.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if activities == nil {
		activities = []models.Activity{}
	}
	return activities, nil
}

// Present attaches permalinks and relative times to activities.
func (r *Recorder) Present(ctx context.Context, activities []models.Activity, now time.Time) []Entry {
	entries := make([]Entry, 0, len(activities))
	for _, a := range activities {
		link, err := r.Permalink(ctx, a)
		if err != nil {
			logging.FromContext(ctx).Warn("failed to build activity permalink", "activityId", a.ID, "error", err)
		}
		entries = append(entries, Entry{Activity: a, Permalink: link, TimeSince: TimeSince(a, now)})
	}
	return entries
}
