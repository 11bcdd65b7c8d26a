package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"anibridge-plex/internal/config"
	"anibridge-plex/internal/logging"
	"anibridge-plex/internal/mapping"
	"anibridge-plex/internal/services/community"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/services/plextv"
)

var (
	// ErrNotInitialized is returned by operations that need Initialize first.
	ErrNotInitialized = errors.New("plex provider has not been initialized")
	// ErrUserNotFound is returned when the configured user is neither the
	// account owner nor one of its users.
	ErrUserNotFound = errors.New("plex user not found in account")
)

// Namespace is the provider namespace used by the host configuration.
const Namespace = "plex"

const cacheTTL = 300 * time.Second

// AccountService is the plex.tv surface the provider needs.
type AccountService interface {
	Account(ctx context.Context) (plextv.Account, error)
	Users(ctx context.Context) ([]plextv.User, error)
	SharedServerToken(ctx context.Context, machineID string, userID int64) (string, error)
	Watchlist(ctx context.Context) ([]string, error)
}

// ReviewService is the community surface the provider needs.
type ReviewService interface {
	Review(ctx context.Context, metadataID string) (string, bool, error)
}

// Endpoints overrides the hosted Plex services.
type Endpoints struct {
	PlexTV    string
	Discover  string
	Community string
}

// User is the Plex account the provider syncs.
type User struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Section is a movie or show library section visible to the user.
type Section struct {
	Key   string       `json:"key"`
	Title string       `json:"title"`
	Type  string       `json:"type"`
	Kind  mapping.Kind `json:"kind"`
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the HTTP client used for Plex Media Server requests.
func WithHTTPClient(client plex.HTTPDoer) Option {
	return func(p *Provider) { p.httpClient = client }
}

// WithPlexTV replaces the plex.tv client.
func WithPlexTV(accounts AccountService) Option {
	return func(p *Provider) { p.accounts = accounts }
}

// WithCommunity replaces the community review client.
func WithCommunity(reviews ReviewService) Option {
	return func(p *Provider) { p.reviews = reviews }
}

// WithEndpoints points the default plex.tv and community clients elsewhere.
func WithEndpoints(endpoints Endpoints) Option {
	return func(p *Provider) { p.endpoints = endpoints }
}

// WithTimeout sets the request timeout of the default clients.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) { p.timeout = timeout }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logging.NewComponentLogger(logger, "library") }
}

// WithClientIdentifier sets X-Plex-Client-Identifier on every request.
func WithClientIdentifier(id string) Option {
	return func(p *Provider) { p.clientID = strings.TrimSpace(id) }
}

// Provider is the Plex library provider.
type Provider struct {
	cfg           config.ProviderConfig
	sectionFilter map[string]struct{}
	genres        []string

	httpClient plex.HTTPDoer
	accounts   AccountService
	reviews    ReviewService
	endpoints  Endpoints
	timeout    time.Duration
	clientID   string
	now        func() time.Time
	logger     *slog.Logger

	mu           sync.RWMutex
	ready        bool
	admin        *plex.Client
	userClient   *plex.Client
	identity     plex.Identity
	account      plextv.Account
	user         *User
	userID       int64
	isAdmin      bool
	sections     []Section
	onDeckWindow time.Duration

	cacheMu        sync.Mutex
	continueCache  map[string]keySet
	orderingCache  map[string]mapping.Ordering
	watchlistCache *keySet
}

// New validates cfg and returns an uninitialized provider.
func New(cfg config.ProviderConfig, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		cfg:           cfg,
		sectionFilter: make(map[string]struct{}, len(cfg.Sections)),
		now:           time.Now,
		logger:        logging.NewComponentLogger(nil, "library"),
		continueCache: map[string]keySet{},
		orderingCache: map[string]mapping.Ordering{},
	}
	for _, title := range cfg.Sections {
		if folded := fold(title); folded != "" {
			p.sectionFilter[folded] = struct{}{}
		}
	}
	for _, genre := range cfg.Genres {
		if genre != "" {
			p.genres = append(p.genres, genre)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Initialize connects to Plex, resolves the configured user, and loads the
// visible sections. It may be called again to refresh state.
func (p *Provider) Initialize(ctx context.Context) error {
	admin, err := p.newAdminClient()
	if err != nil {
		return err
	}
	if err := p.ensureServices(); err != nil {
		return err
	}

	identity, err := admin.Identity(ctx)
	if err != nil {
		return fmt.Errorf("connect to plex server: %w", err)
	}
	account, err := p.accounts.Account(ctx)
	if err != nil {
		return fmt.Errorf("fetch plex account: %w", err)
	}

	target, err := p.resolveUser(ctx, account)
	if err != nil {
		return err
	}

	userClient := admin
	if target != nil {
		login := target.Login()
		if login == "" {
			return errors.New("unable to switch plex user: no username, email, or title available")
		}
		token, err := p.accounts.SharedServerToken(ctx, identity.MachineIdentifier, target.ID)
		if err != nil {
			return fmt.Errorf("switch to plex user %q: %w", login, err)
		}
		userClient = admin.WithToken(token)
	}

	user, userID := p.describeUser(account, target)

	rawSections, err := userClient.Sections(ctx)
	if err != nil {
		return fmt.Errorf("list plex sections: %w", err)
	}
	sections := p.filterSections(rawSections)

	window := p.readOnDeckWindow(ctx, admin)

	p.mu.Lock()
	p.admin = admin
	p.userClient = userClient
	p.identity = identity
	p.account = account
	p.user = user
	p.userID = userID
	p.isAdmin = target == nil
	p.sections = sections
	p.onDeckWindow = window
	p.ready = true
	p.mu.Unlock()

	p.ClearCache()

	p.logger.Info("plex provider initialized",
		logging.String("user", user.Title),
		logging.Bool("admin", target == nil),
		logging.Int("sections", len(sections)),
		logging.String("server_version", identity.Version),
	)
	return nil
}

func (p *Provider) newAdminClient() (*plex.Client, error) {
	opts := []plex.Option{}
	if p.clientID != "" {
		opts = append(opts, plex.WithClientIdentifier(p.clientID))
	}
	if p.httpClient != nil {
		opts = append(opts, plex.WithHTTPClient(p.httpClient))
	} else if p.timeout > 0 {
		opts = append(opts, plex.WithTimeout(p.timeout))
	}
	client, err := plex.New(p.cfg.URL, p.cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create plex client: %w", err)
	}
	return client, nil
}

func (p *Provider) ensureServices() error {
	if p.accounts == nil {
		accounts, err := plextv.New(plextv.Config{
			BaseURL:          p.endpoints.PlexTV,
			DiscoverURL:      p.endpoints.Discover,
			Token:            p.cfg.Token,
			ClientIdentifier: p.clientID,
			Timeout:          p.timeout,
		})
		if err != nil {
			return fmt.Errorf("create plex.tv client: %w", err)
		}
		p.accounts = accounts
	}
	if p.reviews == nil {
		reviews, err := community.New(p.cfg.Token,
			community.WithBaseURL(p.endpoints.Community),
			community.WithTimeout(p.timeout),
		)
		if err != nil {
			return fmt.Errorf("create community client: %w", err)
		}
		p.reviews = reviews
	}
	return nil
}

// resolveUser returns nil when the configured user is the account owner.
func (p *Provider) resolveUser(ctx context.Context, account plextv.Account) (*plextv.User, error) {
	requested := fold(p.cfg.User)
	if requested == "" {
		return nil, nil
	}
	for _, candidate := range []string{account.Username, account.Email, account.Title} {
		if candidate != "" && fold(candidate) == requested {
			return nil, nil
		}
	}

	users, err := p.accounts.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plex users: %w", err)
	}
	for i := range users {
		user := users[i]
		if requested == fold(user.Username) || requested == fold(user.Email) || requested == fold(user.Title) {
			return &user, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUserNotFound, p.cfg.User)
}

func (p *Provider) describeUser(account plextv.Account, target *plextv.User) (*User, int64) {
	requested := strings.TrimSpace(p.cfg.User)
	var (
		candidates []string
		id         int64
	)
	if target != nil {
		candidates = []string{target.Username, target.Email, target.Title, requested, "Plex User"}
		id = target.ID
	} else {
		candidates = []string{account.Username, account.Email, account.Title, requested, "Plex Admin"}
		id = account.ID
	}
	title := "Plex User"
	for _, candidate := range candidates {
		if candidate != "" {
			title = candidate
			break
		}
	}
	return &User{Key: fmt.Sprint(id), Title: title}, id
}

func (p *Provider) filterSections(raw []plex.Section) []Section {
	sections := make([]Section, 0, len(raw))
	for _, section := range raw {
		var kind mapping.Kind
		switch section.Type {
		case plex.TypeMovie:
			kind = mapping.KindMovie
		case plex.TypeShow:
			kind = mapping.KindShow
		default:
			continue
		}
		if len(p.sectionFilter) > 0 {
			if _, ok := p.sectionFilter[fold(section.Title)]; !ok {
				continue
			}
		}
		sections = append(sections, Section{
			Key:   section.Key.String(),
			Title: section.Title,
			Type:  section.Type,
			Kind:  kind,
		})
	}
	return sections
}

// readOnDeckWindow returns the server's onDeckWindow (weeks) or 0.
func (p *Provider) readOnDeckWindow(ctx context.Context, admin *plex.Client) time.Duration {
	prefs, err := admin.ServerPreferences(ctx)
	if err != nil {
		logging.WarnWithContext(p.logger, "on-deck window unavailable", "plex_prefs_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "on-deck window reported as unset"),
		)
		return 0
	}
	setting, ok := plex.FindSetting(prefs, "onDeckWindow")
	if !ok {
		return 0
	}
	weeks, ok := setting.Float()
	if !ok || weeks <= 0 {
		return 0
	}
	return time.Duration(weeks * float64(7*24*time.Hour))
}

// Close drops the connection state and caches.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.ready = false
	p.admin = nil
	p.userClient = nil
	p.identity = plex.Identity{}
	p.account = plextv.Account{}
	p.user = nil
	p.userID = 0
	p.isAdmin = false
	p.sections = nil
	p.onDeckWindow = 0
	p.mu.Unlock()
	p.ClearCache()
	return nil
}

// ClearCache empties the continue-watching, watchlist, and ordering caches.
func (p *Provider) ClearCache() {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.continueCache = map[string]keySet{}
	p.orderingCache = map[string]mapping.Ordering{}
	p.watchlistCache = nil
}

// User returns the synced user, nil before Initialize.
func (p *Provider) User() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	user := *p.user
	return &user
}

// IsAdmin reports whether the synced user owns the server.
func (p *Provider) IsAdmin() (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return false, ErrNotInitialized
	}
	return p.isAdmin, nil
}

// Sections returns the filtered movie and show sections.
func (p *Provider) Sections() ([]Section, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, ErrNotInitialized
	}
	return append([]Section(nil), p.sections...), nil
}

// Section finds a section by key or case-folded title.
func (p *Provider) Section(keyOrTitle string) (Section, bool) {
	sections, err := p.Sections()
	if err != nil {
		return Section{}, false
	}
	folded := fold(keyOrTitle)
	for _, section := range sections {
		if section.Key == keyOrTitle || fold(section.Title) == folded {
			return section, true
		}
	}
	return Section{}, false
}

// OnDeckWindow returns the server's on-deck window, 0 when unknown.
func (p *Provider) OnDeckWindow() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onDeckWindow
}

// Strict reports whether cross-scheme mapping fallback is disabled.
func (p *Provider) Strict() bool {
	return p.cfg.Strict
}

// Server returns the identity of the connected server.
func (p *Provider) Server() plex.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

type session struct {
	admin   *plex.Client
	user    *plex.Client
	userID  int64
	isAdmin bool
}

func (p *Provider) session() (session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return session{}, ErrNotInitialized
	}
	return session{admin: p.admin, user: p.userClient, userID: p.userID, isAdmin: p.isAdmin}, nil
}

// fold normalizes names for case-insensitive matching using Unicode case folding.
func fold(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}
