package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"folio/api/internal/auth"
	"folio/api/internal/authpw"
	"folio/api/internal/config"
	"folio/api/internal/dispatch"
	"folio/api/internal/export"
	"folio/api/internal/lifecycle"
	"folio/api/internal/logging"
	"folio/api/internal/metrics"
	"folio/api/internal/rbac"
	"folio/api/internal/revisions"
	"folio/api/internal/search"
	"folio/api/internal/session"
	"folio/api/internal/store"
	"folio/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	OrgID        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	authpw.UserStore
	session.Store
	Ping(context.Context) error
	CreateOrganization(context.Context, string) (store.Organization, error)
	GetOrganization(context.Context, string) (store.Organization, error)
	AddMember(context.Context, string, string, string) error
	GetMembership(context.Context, string, string) (store.Membership, error)
	ListMemberships(context.Context, string) ([]store.Membership, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	CreateCustomer(context.Context, store.Customer) (store.Customer, error)
	GetCustomer(context.Context, string, string) (store.Customer, error)
	ListCustomers(context.Context, string) ([]store.Customer, error)
	UpdateCustomer(context.Context, store.Customer) (store.Customer, error)
	DeleteCustomer(context.Context, string, string) error
	CreateDocument(context.Context, store.Document) (store.Document, error)
	UpdateDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string, string) (store.Document, error)
	GetDocumentForShare(context.Context, lifecycle.Kind, string) (store.Document, error)
	ListDocuments(context.Context, string, store.DocumentFilter) ([]store.Document, error)
	SearchDocuments(context.Context, string, string, int) ([]store.Document, error)
	ListDueCandidates(context.Context, []lifecycle.State) ([]store.Document, error)
	ListAllDocuments(context.Context) ([]store.Document, error)
	DeleteDocument(context.Context, string, string) error
	CountByState(context.Context, string, lifecycle.Kind) (map[lifecycle.State]int, error)
}

// Deps are the collaborators of Service. Only Store is required; the rest
// fall back to working defaults.
type Deps struct {
	Store      dataStore
	Sessions   session.Store
	Engine     *lifecycle.Engine
	Dispatcher *dispatch.Dispatcher
	Revisions  *revisions.Service
	Search     *search.Service
	Export     *export.Service
	Metrics    *metrics.Recorder
	Logger     *zap.Logger
	BcryptCost int
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  session.Store
	passwords *authpw.Service
	engine    *lifecycle.Engine
	dispatch  *dispatch.Dispatcher
	revisions *revisions.Service
	search    *search.Service
	export    *export.Service
	metrics   *metrics.Recorder
	logger    *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := logging.OrNop(deps.Logger)
	s := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(deps.Store, deps.BcryptCost),
		engine:    deps.Engine,
		dispatch:  deps.Dispatcher,
		revisions: deps.Revisions,
		search:    deps.Search,
		export:    deps.Export,
		metrics:   deps.Metrics,
		logger:    logger,
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	if s.engine == nil {
		s.engine = lifecycle.MustDefault()
	}
	if s.dispatch == nil {
		s.dispatch = dispatch.New(nil, cfg.PublicBaseURL, logger.Named("dispatch"), deps.Metrics)
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewStoreSearch(deps.Store), logger)
	}
	if s.export == nil {
		s.export = export.NewService(s.engine, logger)
	}
	return s
}

func (s *Service) Engine() *lifecycle.Engine {
	return s.engine
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks a dedicated session backend. configured is false when
// refresh sessions live in the database.
func (s *Service) PingSessions(ctx context.Context) (configured bool, err error) {
	pinger, ok := s.sessions.(interface{ Ping(context.Context) error })
	if !ok || s.sessions == session.Store(s.store) {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) authorize(session Session, action rbac.Action) error {
	if !s.Can(session.Role, action) {
		return errForbidden
	}
	return nil
}

// SignUp registers a user together with a new organization they own.
func (s *Service) SignUp(ctx context.Context, email, password, displayName, orgName string) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	orgName = strings.TrimSpace(orgName)
	if orgName == "" {
		orgName = strings.TrimSpace(displayName) + "'s workspace"
	}
	org, err := s.store.CreateOrganization(ctx, orgName)
	if err != nil {
		return Session{}, fmt.Errorf("create organization: %w", err)
	}
	if err := s.store.AddMember(ctx, org.ID, user.ID, string(rbac.RoleOwner)); err != nil {
		return Session{}, fmt.Errorf("add owner: %w", err)
	}
	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("org_id", org.ID))
	return s.issueSession(ctx, user, store.Membership{OrgID: org.ID, OrgName: org.Name, UserID: user.ID, Role: string(rbac.RoleOwner)})
}

// SignIn opens a session in orgID, or in the user's first organization when
// orgID is empty.
func (s *Service) SignIn(ctx context.Context, email, password, orgID string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	membership, err := s.pickMembership(ctx, user.ID, orgID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user, membership)
}

// Refresh rotates a refresh token. The old token is revoked before the new
// session is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken, orgID string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := util.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, session.ErrSessionNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	membership, err := s.pickMembership(ctx, user.ID, orgID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user, membership)
}

// SwitchOrganization issues a session for another organization the user
// belongs to.
func (s *Service) SwitchOrganization(ctx context.Context, current Session, orgID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, current.UserID)
	if err != nil {
		return Session{}, err
	}
	membership, err := s.pickMembership(ctx, user.ID, orgID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user, membership)
}

func (s *Service) pickMembership(ctx context.Context, userID, orgID string) (store.Membership, error) {
	if orgID = strings.TrimSpace(orgID); orgID != "" {
		membership, err := s.store.GetMembership(ctx, orgID, userID)
		if errors.Is(err, store.ErrNotFound) {
			return store.Membership{}, errForbidden
		}
		return membership, err
	}
	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return store.Membership{}, err
	}
	if len(memberships) == 0 {
		return store.Membership{}, domainError(http.StatusForbidden, "NO_ORGANIZATION", "User does not belong to any organization", nil)
	}
	return memberships[0], nil
}

func (s *Service) issueSession(ctx context.Context, user store.User, membership store.Membership) (Session, error) {
	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, membership.OrgID, membership.Role, s.cfg.AccessTTL())
	if err != nil {
		return Session{}, err
	}
	refresh, refreshHash := auth.NewRefreshToken()
	if err := s.sessions.SaveRefreshSession(ctx, refreshHash, user.ID, time.Now().Add(s.cfg.RefreshTTL())); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}
	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		OrgID:        membership.OrgID,
		Role:         membership.Role,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// SessionFromToken validates an access token and reloads the caller's role,
// so membership changes take effect before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}
	membership, err := s.store.GetMembership(ctx, claims.OrgID, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		OrgID:     claims.OrgID,
		Role:      membership.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, util.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	return s.passwords.ChangePassword(ctx, session.UserID, current, next)
}

type OrganizationView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type MemberView struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Service) ListOrganizations(ctx context.Context, session Session) ([]OrganizationView, error) {
	memberships, err := s.store.ListMemberships(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]OrganizationView, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, OrganizationView{ID: m.OrgID, Name: m.OrgName, Role: m.Role})
	}
	return items, nil
}

func (s *Service) CreateOrganization(ctx context.Context, session Session, name string) (OrganizationView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return OrganizationView{}, validationError("name is required")
	}
	org, err := s.store.CreateOrganization(ctx, name)
	if err != nil {
		return OrganizationView{}, err
	}
	if err := s.store.AddMember(ctx, org.ID, session.UserID, string(rbac.RoleOwner)); err != nil {
		return OrganizationView{}, err
	}
	return OrganizationView{ID: org.ID, Name: org.Name, Role: string(rbac.RoleOwner)}, nil
}

func (s *Service) ListMembers(ctx context.Context, session Session) ([]MemberView, error) {
	if err := s.authorize(session, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	items := make([]MemberView, 0, len(members))
	for _, m := range members {
		items = append(items, MemberView{UserID: m.UserID, Role: m.Role})
	}
	return items, nil
}

// AddMember adds a registered user to the caller's organization. Only owners
// may grant the owner role.
func (s *Service) AddMember(ctx context.Context, session Session, email, role string) (MemberView, error) {
	if err := s.authorize(session, rbac.ActionManage); err != nil {
		return MemberView{}, err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return MemberView{}, validationError("a valid email is required")
	}
	granted := rbac.Normalize(role)
	if granted == rbac.RoleOwner && !s.Can(session.Role, rbac.ActionAdmin) {
		return MemberView{}, errForbidden
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, store.ErrNotFound) {
		return MemberView{}, notFoundError("user")
	}
	if err != nil {
		return MemberView{}, err
	}
	if err := s.store.AddMember(ctx, session.OrgID, user.ID, string(granted)); err != nil {
		return MemberView{}, err
	}
	return MemberView{UserID: user.ID, Role: string(granted)}, nil
}
