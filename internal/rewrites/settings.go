package rewrites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kinship/backend/internal/repositories"
)

const optionSettings = "kinship_rewrites"

var (
	// ErrUnknownRewriteID indicates a slug override for an ID no component owns.
	ErrUnknownRewriteID = errors.New("unknown rewrite id")
	// ErrInvalidSlug indicates a slug that is empty once sanitised.
	ErrInvalidSlug = errors.New("invalid slug")
	// ErrSlugConflict indicates two sibling URL segments would share a slug.
	ErrSlugConflict = errors.New("slug already in use")
)

// DirectoryPage is the content page that anchors a component's permalinks.
type DirectoryPage struct {
	ComponentID string `json:"componentId"`
	PageID      int64  `json:"pageId"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
}

// Settings holds slug overrides keyed by rewrite ID and directory pages keyed
// by component ID.
type Settings struct {
	Slugs          map[string]string        `json:"slugs"`
	DirectoryPages map[string]DirectoryPage `json:"directoryPages"`
}

func (s Settings) clone() Settings {
	out := Settings{
		Slugs:          make(map[string]string, len(s.Slugs)),
		DirectoryPages: make(map[string]DirectoryPage, len(s.DirectoryPages)),
	}
	for k, v := range s.Slugs {
		out.Slugs[k] = v
	}
	for k, v := range s.DirectoryPages {
		out.DirectoryPages[k] = v
	}
	return out
}

// OptionStore persists named option blobs. Unset options yield
// repositories.ErrNotFound.
type OptionStore interface {
	GetOption(ctx context.Context, name string) ([]byte, error)
	SetOption(ctx context.Context, name string, value []byte) error
}

// SettingsSource supplies the current rewrite settings.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSettings is a SettingsSource with fixed contents.
type StaticSettings Settings

// Settings implements SettingsSource.
func (s StaticSettings) Settings(context.Context) (Settings, error) {
	return Settings(s).clone(), nil
}

// Update is a batch of slug overrides and directory pages applied together.
// An empty slug restores the default for that rewrite ID.
type Update struct {
	Slugs          map[string]string `json:"slugs"`
	DirectoryPages []DirectoryPage   `json:"directoryPages"`
}

// Store loads and saves rewrite settings through an OptionStore, caching
// reads for a TTL.
type Store struct {
	options    OptionStore
	components []Component
	ttl        time.Duration
	now        func() time.Time

	// writeMu serialises read-modify-write cycles.
	writeMu sync.Mutex

	mu      sync.RWMutex
	cached  *Settings
	expires time.Time
	// gen changes on every invalidation; loads that straddle one are not cached.
	gen uint64
}

// NewStore constructs a Store validating against the provided components.
func NewStore(options OptionStore, ttl time.Duration, components []Component) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{options: options, components: components, ttl: ttl, now: time.Now}
}

// Settings returns cached settings when fresh, otherwise reloads them.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	now := s.now()

	s.mu.RLock()
	if s.cached != nil && now.Before(s.expires) {
		out := s.cached.clone()
		s.mu.RUnlock()
		return out, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	settings, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cached = &settings
		s.expires = now.Add(s.ttl)
	}
	s.mu.Unlock()

	return settings.clone(), nil
}

// SaveSlugs merges slug overrides into the stored settings.
func (s *Store) SaveSlugs(ctx context.Context, slugs map[string]string) (Settings, error) {
	return s.Apply(ctx, Update{Slugs: slugs})
}

// SaveDirectoryPage associates a content page with a component.
func (s *Store) SaveDirectoryPage(ctx context.Context, page DirectoryPage) (Settings, error) {
	return s.Apply(ctx, Update{DirectoryPages: []DirectoryPage{page}})
}

// Apply merges u into the stored settings and writes the result in a single
// option write. Nothing is persisted unless the merged settings validate.
func (s *Store) Apply(ctx context.Context, u Update) (Settings, error) {
	known := make(map[string]struct{})
	components := make(map[string]struct{}, len(s.components))
	for _, c := range s.components {
		components[c.ID] = struct{}{}
		for _, id := range c.RewriteIDs() {
			known[id] = struct{}{}
		}
	}

	slugs := make(map[string]string, len(u.Slugs))
	for id, raw := range u.Slugs {
		if _, ok := known[id]; !ok {
			return Settings{}, fmt.Errorf("%w: %s", ErrUnknownRewriteID, id)
		}
		if raw == "" {
			slugs[id] = ""
			continue
		}
		slug := Sanitize(raw)
		if slug == "" {
			return Settings{}, fmt.Errorf("%w: %q", ErrInvalidSlug, raw)
		}
		slugs[id] = slug
	}

	pages := make([]DirectoryPage, 0, len(u.DirectoryPages))
	for _, page := range u.DirectoryPages {
		if _, ok := components[page.ComponentID]; !ok {
			return Settings{}, fmt.Errorf("%w: %s", ErrUnknownComponent, page.ComponentID)
		}
		page.Slug = Sanitize(page.Slug)
		if page.Slug == "" {
			return Settings{}, fmt.Errorf("%w: directory page slug for %s", ErrInvalidSlug, page.ComponentID)
		}
		pages = append(pages, page)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := current.clone()
	for id, slug := range slugs {
		if slug == "" {
			delete(next.Slugs, id)
			continue
		}
		next.Slugs[id] = slug
	}
	for _, page := range pages {
		next.DirectoryPages[page.ComponentID] = page
	}

	if err := Validate(next, s.components); err != nil {
		return Settings{}, err
	}
	if err := s.persist(ctx, optionSettings, next); err != nil {
		return Settings{}, err
	}
	s.invalidate()
	return next, nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.gen++
	s.mu.Unlock()
}

func (s *Store) load(ctx context.Context) (Settings, error) {
	var settings Settings
	if err := s.read(ctx, optionSettings, &settings); err != nil {
		return Settings{}, err
	}
	if settings.Slugs == nil {
		settings.Slugs = make(map[string]string)
	}
	if settings.DirectoryPages == nil {
		settings.DirectoryPages = make(map[string]DirectoryPage)
	}
	return settings, nil
}

func (s *Store) read(ctx context.Context, name string, dst any) error {
	raw, err := s.options.GetOption(ctx, name)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read option %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode option %s: %w", name, err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode option %s: %w", name, err)
	}
	if err := s.options.SetOption(ctx, name, raw); err != nil {
		return fmt.Errorf("write option %s: %w", name, err)
	}
	return nil
}

// Validate checks that no two sibling segments resolve to the same slug.
func Validate(settings Settings, components []Component) error {
	directories := make(map[string]string)
	for _, c := range components {
		dir := directorySlug(c, settings)
		if owner, ok := directories[dir]; ok {
			return fmt.Errorf("%w: directory %q used by %s and %s", ErrSlugConflict, dir, owner, c.ID)
		}
		directories[dir] = c.ID

		subs := make(map[string]string)
		for _, sub := range c.SubComponents {
			slug := subComponentSlug(c, sub.ID, settings)
			if owner, ok := subs[slug]; ok {
				return fmt.Errorf("%w: %q used by %s and %s", ErrSlugConflict, slug, owner, sub.ID)
			}
			subs[slug] = sub.ID

			actions := make(map[string]string)
			for _, action := range sub.Actions {
				aslug := actionSlug(c, sub.ID, action.ID, settings)
				if owner, ok := actions[aslug]; ok {
					return fmt.Errorf("%w: %q used by %s and %s", ErrSlugConflict, aslug, owner, action.ID)
				}
				actions[aslug] = action.ID
			}
		}
	}
	return nil
}

func directorySlug(c Component, settings Settings) string {
	if page, ok := settings.DirectoryPages[c.ID]; ok && page.Slug != "" {
		return page.Slug
	}
	if slug := settings.Slugs[c.DirectoryRewriteID]; slug != "" {
		return slug
	}
	return c.DefaultDirectorySlug
}

func subComponentSlug(c Component, subID string, settings Settings) string {
	if slug := settings.Slugs[c.SubComponentRewriteID(subID)]; slug != "" {
		return slug
	}
	if sub, ok := c.subComponent(subID); ok && sub.DefaultSlug != "" {
		return sub.DefaultSlug
	}
	return Sanitize(subID)
}

func actionSlug(c Component, subID, actionID string, settings Settings) string {
	if slug := settings.Slugs[c.ActionRewriteID(subID, actionID)]; slug != "" {
		return slug
	}
	if sub, ok := c.subComponent(subID); ok {
		for _, action := range sub.Actions {
			if action.ID == actionID && action.DefaultSlug != "" {
				return action.DefaultSlug
			}
		}
	}
	return Sanitize(actionID)
}

func subComponentID(c Component, slug string, settings Settings) string {
	for _, sub := range c.SubComponents {
		if subComponentSlug(c, sub.ID, settings) == slug {
			return sub.ID
		}
	}
	return slug
}

func actionID(c Component, subID, slug string, settings Settings) string {
	if sub, ok := c.subComponent(subID); ok {
		for _, action := range sub.Actions {
			if actionSlug(c, subID, action.ID, settings) == slug {
				return action.ID
			}
		}
	}
	return slug
}
