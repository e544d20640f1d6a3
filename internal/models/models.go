package models

import "time"

// User represents a member of the community.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"-"`
	Password         string     `json:"-"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"displayName"`
	AvatarURL        string     `json:"avatarUrl"`
	IsAdmin          bool       `json:"isAdmin"`
	TotalFriendCount int        `json:"totalFriendCount"`
	LastActivity     *time.Time `json:"lastActivity,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Friendship links two members. A record is pending until the recipient
// (FriendID) accepts it, after which IsConfirmed is true.
type Friendship struct {
	ID          string    `json:"id"`
	InitiatorID string    `json:"initiatorId"`
	FriendID    string    `json:"friendId"`
	IsConfirmed bool      `json:"isConfirmed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Involves reports whether userID is one of the two parties.
func (f Friendship) Involves(userID string) bool {
	return f.InitiatorID == userID || f.FriendID == userID
}

// Other returns the party that is not userID.
func (f Friendship) Other(userID string) string {
	if f.InitiatorID == userID {
		return f.FriendID
	}
	return f.InitiatorID
}

// Activity is a single entry in the activity stream.
type Activity struct {
	ID              int64     `json:"id,string"`
	UserID          string    `json:"userId"`
	Component       string    `json:"component"`
	Type            string    `json:"type"`
	Action          string    `json:"action"`
	Content         string    `json:"content"`
	PrimaryLink     string    `json:"primaryLink"`
	ItemID          string    `json:"itemId"`
	SecondaryItemID string    `json:"secondaryItemId"`
	HideSitewide    bool      `json:"hideSitewide"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// ProfileFieldGroup groups extended profile fields for display.
type ProfileFieldGroup struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// ProfileField describes one extended profile field.
type ProfileField struct {
	ID                    int64    `json:"id"`
	GroupID               int64    `json:"groupId"`
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Type                  string   `json:"type"`
	Required              bool     `json:"required"`
	Options               []string `json:"options"`
	DefaultVisibility     string   `json:"defaultVisibility"`
	AllowCustomVisibility bool     `json:"allowCustomVisibility"`
	Order                 int      `json:"order"`
}

// ProfileFieldData holds a member's value for a field.
type ProfileFieldData struct {
	FieldID    int64     `json:"fieldId"`
	UserID     string    `json:"userId"`
	Value      string    `json:"value"`
	Visibility string    `json:"visibility"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Member directory orderings.
const (
	MemberOrderActive       = "active"
	MemberOrderNewest       = "newest"
	MemberOrderAlphabetical = "alphabetical"
)

// MemberQuery filters the member directory.
type MemberQuery struct {
	Order  string
	Search string
	// IDs restricts results to the given members when non-nil.
	IDs    []string
	Limit  int
	Offset int
}

// Friendship listing scopes.
const (
	FriendshipsConfirmed = "confirmed"
	FriendshipsIncoming  = "incoming"
	FriendshipsOutgoing  = "outgoing"
)

// ActivityQuery filters the activity stream. Zero values match everything.
type ActivityQuery struct {
	UserIDs       []string
	Component     string
	Type          string
	ExcludeHidden bool
	Limit         int
	Offset        int
}

// ActivityItemFilter selects the activities attached to an item.
// Empty string fields are not constrained.
type ActivityItemFilter struct {
	UserID          string
	Component       string
	Type            string
	ItemID          string
	SecondaryItemID string
}
