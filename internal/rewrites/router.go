package rewrites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

var (
	// ErrUnknownComponent indicates a component ID no router entry exists for.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrInvalidArgs indicates URL arguments that skip a required level.
	ErrInvalidArgs = errors.New("invalid url arguments")
	// ErrNoRoute indicates a URL that does not map to any component.
	ErrNoRoute = errors.New("no matching route")
)

// URLArgs identifies a page by component, single item, sub-component, action
// and action variables. Each level requires the previous one.
type URLArgs struct {
	ComponentID         string   `json:"componentId"`
	SingleItem          string   `json:"singleItem,omitempty"`
	SingleItemComponent string   `json:"singleItemComponent,omitempty"`
	SingleItemAction    string   `json:"singleItemAction,omitempty"`
	ActionVariables     []string `json:"actionVariables,omitempty"`
}

// Router builds and resolves community URLs in either pretty-permalink or
// query-string form.
type Router struct {
	home       string
	homePath   string
	pretty     bool
	source     SettingsSource
	components map[string]Component
	order      []string

	// routes is rebuilt only when the directory slugs change.
	routesMu  sync.Mutex
	routesKey string
	routes    *mux.Router
}

// NewRouter constructs a Router rooted at homeURL.
func NewRouter(homeURL string, pretty bool, source SettingsSource, components []Component) (*Router, error) {
	home, err := url.Parse(strings.TrimSuffix(homeURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse home url: %w", err)
	}
	if !home.IsAbs() {
		return nil, fmt.Errorf("home url %q must be absolute", homeURL)
	}
	if source == nil {
		source = StaticSettings{}
	}

	r := &Router{
		home:       strings.TrimSuffix(home.String(), "/"),
		homePath:   strings.TrimSuffix(home.Path, "/"),
		pretty:     pretty,
		source:     source,
		components: make(map[string]Component, len(components)),
	}
	for _, c := range components {
		r.components[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r, nil
}

// Pretty reports whether the router emits pretty permalinks.
func (r *Router) Pretty() bool { return r.pretty }

// Components returns the registered components in registration order.
func (r *Router) Components() []Component {
	out := make([]Component, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.components[id])
	}
	return out
}

// URL returns the address of the page described by args.
func (r *Router) URL(ctx context.Context, args URLArgs) (string, error) {
	c, ok := r.components[args.ComponentID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownComponent, args.ComponentID)
	}
	if err := args.validate(); err != nil {
		return "", err
	}
	if args.SingleItemComponent != "" && len(c.SubComponents) == 0 {
		return "", fmt.Errorf("%w: %s has no sub-components", ErrInvalidArgs, c.ID)
	}

	settings, err := r.source.Settings(ctx)
	if err != nil {
		return "", fmt.Errorf("load rewrite settings: %w", err)
	}

	var subSlug, actSlug string
	if args.SingleItemComponent != "" {
		subSlug = subComponentSlug(c, args.SingleItemComponent, settings)
		if subSlug == "" {
			return "", fmt.Errorf("%w: sub-component %q has no usable slug", ErrInvalidArgs, args.SingleItemComponent)
		}
	}
	if args.SingleItemAction != "" {
		actSlug = actionSlug(c, args.SingleItemComponent, args.SingleItemAction, settings)
		if actSlug == "" {
			return "", fmt.Errorf("%w: action %q has no usable slug", ErrInvalidArgs, args.SingleItemAction)
		}
	}

	if r.pretty {
		segments := []string{directorySlug(c, settings)}
		if args.SingleItem != "" {
			segments = append(segments, url.PathEscape(args.SingleItem))
		}
		if subSlug != "" {
			segments = append(segments, subSlug)
		}
		if actSlug != "" {
			segments = append(segments, actSlug)
		}
		for _, v := range args.ActionVariables {
			segments = append(segments, url.PathEscape(v))
		}
		return r.home + "/" + strings.Join(segments, "/") + "/", nil
	}

	q := url.Values{}
	q.Set(c.DirectoryRewriteID, "1")
	if args.SingleItem != "" {
		q.Set(c.SingleItemRewriteID, args.SingleItem)
	}
	if subSlug != "" {
		q.Set(c.componentVar(), subSlug)
	}
	if actSlug != "" {
		q.Set(c.actionVar(), actSlug)
	}
	if len(args.ActionVariables) > 0 {
		q.Set(c.variablesVar(), strings.Join(args.ActionVariables, "/"))
	}
	return r.home + "/?" + q.Encode(), nil
}

// MemberURL returns a member's page; path holds the optional sub-component,
// action and action variables.
func (r *Router) MemberURL(ctx context.Context, username string, path ...string) (string, error) {
	args := URLArgs{ComponentID: ComponentMembers, SingleItem: username}
	if len(path) > 0 {
		args.SingleItemComponent = path[0]
	}
	if len(path) > 1 {
		args.SingleItemAction = path[1]
	}
	if len(path) > 2 {
		args.ActionVariables = path[2:]
	}
	return r.URL(ctx, args)
}

// ActivityURL returns the permalink of a single activity.
func (r *Router) ActivityURL(ctx context.Context, id int64) (string, error) {
	return r.URL(ctx, URLArgs{ComponentID: ComponentActivity, SingleItem: strconv.FormatInt(id, 10)})
}

// DirectoryURL returns a component's directory page.
func (r *Router) DirectoryURL(ctx context.Context, componentID string) (string, error) {
	return r.URL(ctx, URLArgs{ComponentID: componentID})
}

// Resolve maps a URL produced by URL back to its arguments. Both pretty and
// query-string forms are accepted regardless of the configured mode.
func (r *Router) Resolve(ctx context.Context, u *url.URL) (URLArgs, error) {
	if u == nil {
		return URLArgs{}, ErrNoRoute
	}
	settings, err := r.source.Settings(ctx)
	if err != nil {
		return URLArgs{}, fmt.Errorf("load rewrite settings: %w", err)
	}

	q := u.Query()
	for _, id := range r.order {
		c := r.components[id]
		if q.Get(c.DirectoryRewriteID) != "" {
			return resolveQuery(c, q, settings)
		}
	}
	return r.resolvePath(u.Path, settings)
}

func resolveQuery(c Component, q url.Values, settings Settings) (URLArgs, error) {
	args := URLArgs{
		ComponentID: c.ID,
		SingleItem:  q.Get(c.SingleItemRewriteID),
	}
	if slug := q.Get(c.componentVar()); slug != "" {
		args.SingleItemComponent = subComponentID(c, slug, settings)
	}
	if slug := q.Get(c.actionVar()); slug != "" {
		args.SingleItemAction = actionID(c, args.SingleItemComponent, slug, settings)
	}
	if vars := q.Get(c.variablesVar()); vars != "" {
		args.ActionVariables = strings.Split(vars, "/")
	}
	if err := args.validate(); err != nil {
		return URLArgs{}, err
	}
	return args, nil
}

const (
	levelDirectory = "directory"
	levelItem      = "item"
	levelComponent = "component"
	levelAction    = "action"
	levelVariables = "variables"
)

func (r *Router) resolvePath(path string, settings Settings) (URLArgs, error) {
	if r.homePath != "" {
		if path != r.homePath && !strings.HasPrefix(path, r.homePath+"/") {
			return URLArgs{}, ErrNoRoute
		}
		path = strings.TrimPrefix(path, r.homePath)
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	router := r.pathRouter(settings)
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	var match mux.RouteMatch
	if !router.Match(req, &match) || match.Route == nil {
		return URLArgs{}, ErrNoRoute
	}

	componentID, _, _ := strings.Cut(match.Route.GetName(), "|")
	c := r.components[componentID]

	args := URLArgs{ComponentID: c.ID, SingleItem: match.Vars["item"]}
	if slug := match.Vars["component"]; slug != "" {
		args.SingleItemComponent = subComponentID(c, slug, settings)
	}
	if slug := match.Vars["action"]; slug != "" {
		args.SingleItemAction = actionID(c, args.SingleItemComponent, slug, settings)
	}
	if vars := match.Vars["vars"]; vars != "" {
		args.ActionVariables = strings.Split(vars, "/")
	}
	return args, nil
}

// pathRouter returns the mux.Router matching the directory slugs in
// settings, reusing the previous one when they are unchanged.
func (r *Router) pathRouter(settings Settings) *mux.Router {
	dirs := make([]string, 0, len(r.order))
	for _, id := range r.order {
		dirs = append(dirs, directorySlug(r.components[id], settings))
	}
	key := strings.Join(dirs, "/")

	r.routesMu.Lock()
	defer r.routesMu.Unlock()
	if r.routes != nil && r.routesKey == key {
		return r.routes
	}

	router := mux.NewRouter()
	for i, id := range r.order {
		c := r.components[id]
		base := "/" + dirs[i]
		router.Path(base + "/").Name(id + "|" + levelDirectory)
		router.Path(base + "/{item}/").Name(id + "|" + levelItem)
		if len(c.SubComponents) == 0 {
			continue
		}
		router.Path(base + "/{item}/{component}/").Name(id + "|" + levelComponent)
		router.Path(base + "/{item}/{component}/{action}/").Name(id + "|" + levelAction)
		router.Path(base + "/{item}/{component}/{action}/{vars:.+}/").Name(id + "|" + levelVariables)
	}
	r.routes = router
	r.routesKey = key
	return router
}

func (a URLArgs) validate() error {
	switch {
	case a.SingleItemComponent != "" && a.SingleItem == "":
		return fmt.Errorf("%w: sub-component requires a single item", ErrInvalidArgs)
	case a.SingleItemAction != "" && a.SingleItemComponent == "":
		return fmt.Errorf("%w: action requires a sub-component", ErrInvalidArgs)
	case len(a.ActionVariables) > 0 && a.SingleItemAction == "":
		return fmt.Errorf("%w: action variables require an action", ErrInvalidArgs)
	case strings.Contains(a.SingleItem, "/"):
		return fmt.Errorf("%w: single item must not contain '/'", ErrInvalidArgs)
	}
	for _, v := range a.ActionVariables {
		if v == "" || strings.Contains(v, "/") {
			return fmt.Errorf("%w: action variable %q", ErrInvalidArgs, v)
		}
	}
	return nil
}
