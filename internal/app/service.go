package app

import (
	"context"
	"strings"
	"time"

	"lookout/api/internal/auth"
	"lookout/api/internal/authpw"
	"lookout/api/internal/config"
	"lookout/api/internal/email"
	"lookout/api/internal/rbac"
	"lookout/api/internal/store"
	"lookout/api/internal/triage"
	"lookout/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	WorkspaceID  string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	EnsureMembership(context.Context, string, string, string) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	InsertWorkspace(context.Context, store.Workspace) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetPost(context.Context, string) (store.Post, error)
	GetComment(context.Context, string) (store.Comment, error)
	SourceScore(context.Context, store.ItemKind, string) (int, error)
	PostKeywordReach(context.Context, string, string) (bool, error)
	PostCommunityReach(context.Context, string, string) (bool, error)
	PostCommentAnnotationReach(context.Context, string, string) (bool, error)
	CommentKeywordReach(context.Context, string, string) (bool, error)
	CommentCommunityReach(context.Context, string, string) (bool, error)
	CommentAnnotationReach(context.Context, string, string) (bool, error)
	GetAnnotation(context.Context, string, string) (*store.Annotation, error)
	UpsertAnnotationScore(context.Context, string, string, store.ItemKind, int, int, string) error
	UpsertAnnotationStatus(context.Context, string, string, store.ItemKind, int, int, string) error
	ListKeywords(context.Context, string) ([]store.Keyword, error)
	InsertKeyword(context.Context, store.Keyword) (bool, error)
	DeleteKeyword(context.Context, string, string) (bool, error)
	LinkPostKeyword(context.Context, string, string) error
	LinkCommentKeyword(context.Context, string, string) error
	ListTrackedCommunities(context.Context, string) ([]store.Community, error)
	TrackCommunity(context.Context, string, string) error
	UntrackCommunity(context.Context, string, string) (bool, error)
	GetCommunity(context.Context, string) (store.Community, error)
	PostCount(context.Context) (int, error)
	InsertCommunity(context.Context, store.Community) error
	InsertPost(context.Context, store.Post) error
	InsertComment(context.Context, store.Comment) error
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens. Backed by Redis when configured,
// otherwise by the refresh_sessions table.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authPW   *authpw.Service
	email    *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore) *Service {
	return newService(cfg, dataStore, dataStore)
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore) *Service {
	return newService(cfg, dataStore, sessions)
}

func newService(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authPW:   authpw.NewService(dataStore),
		email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authPW
}

func (s *Service) SMTPConfigured() bool {
	return s.email.IsConfigured()
}

func (s *Service) SendVerificationEmail(to, userName, token string) error {
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	return s.email.SendVerificationEmail(to, userName, url)
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	return s.email.SendPasswordResetEmail(to, userName, url)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	holder, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Membership can change between issue and redemption; the user row is
	// authoritative for display name, workspace and role.
	user, err := s.store.GetUserByID(ctx, holder.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:       user.ID,
		Name:      user.DisplayName,
		Workspace: user.WorkspaceID,
		Role:      user.Role,
		JTI:       jti,
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		WorkspaceID:  user.WorkspaceID,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	// The membership row is authoritative for workspace and role, not the
	// claims; admins can move users between workspaces mid-session.
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      user.ID,
		UserName:    user.DisplayName,
		WorkspaceID: user.WorkspaceID,
		Role:        user.Role,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// TriageView returns the workspace's triage overlay for an item. When the
// workspace has never annotated the item, the view carries the default
// status and the item's ingestion-time score; nothing is persisted.
func (s *Service) TriageView(ctx context.Context, session Session, kind store.ItemKind, itemID string) (map[string]any, error) {
	sourceScore, err := s.store.SourceScore(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReach(ctx, kind, itemID, session.WorkspaceID); err != nil {
		return nil, err
	}

	annotation, err := s.store.GetAnnotation(ctx, session.WorkspaceID, itemID)
	if err != nil {
		return nil, err
	}
	if annotation == nil {
		return map[string]any{
			"itemId":     itemID,
			"itemKind":   string(kind),
			"status":     string(triage.StatusLabel(triage.DefaultStatusCode)),
			"statusCode": triage.DefaultStatusCode,
			"score":      sourceScore,
			"annotated":  false,
		}, nil
	}
	return annotationView(annotation), nil
}

// SetScore records a workspace score for an item. Unrecognized score labels
// map to zero rather than being rejected; ingestion feeds replay historical
// labels that predate the current scale.
func (s *Service) SetScore(ctx context.Context, session Session, kind store.ItemKind, itemID, label string) (map[string]any, error) {
	if _, err := s.store.SourceScore(ctx, kind, itemID); err != nil {
		return nil, err
	}
	if err := s.requireReach(ctx, kind, itemID, session.WorkspaceID); err != nil {
		return nil, err
	}

	score := triage.ScoreValue(label)
	if err := s.store.UpsertAnnotationScore(ctx, session.WorkspaceID, itemID, kind, score, triage.DefaultStatusCode, session.UserID); err != nil {
		return nil, err
	}
	return s.readBack(ctx, session.WorkspaceID, itemID)
}

// SetStatus records a workspace status for an item. Unlike scores, an
// unrecognized status label is rejected. A first-time annotation seeds the
// score column from the item's ingestion-time score.
func (s *Service) SetStatus(ctx context.Context, session Session, kind store.ItemKind, itemID, label string) (map[string]any, error) {
	statusCode, ok := triage.StatusCode(label)
	if !ok {
		return nil, errValidation("unrecognized status", map[string]any{"status": label})
	}

	sourceScore, err := s.store.SourceScore(ctx, kind, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReach(ctx, kind, itemID, session.WorkspaceID); err != nil {
		return nil, err
	}

	if err := s.store.UpsertAnnotationStatus(ctx, session.WorkspaceID, itemID, kind, statusCode, sourceScore, session.UserID); err != nil {
		return nil, err
	}
	return s.readBack(ctx, session.WorkspaceID, itemID)
}

func (s *Service) readBack(ctx context.Context, workspaceID, itemID string) (map[string]any, error) {
	annotation, err := s.store.GetAnnotation(ctx, workspaceID, itemID)
	if err != nil {
		return nil, err
	}
	if annotation == nil {
		return nil, errNotFound()
	}
	return annotationView(annotation), nil
}

func annotationView(annotation *store.Annotation) map[string]any {
	return map[string]any{
		"itemId":     annotation.ItemID,
		"itemKind":   string(annotation.ItemKind),
		"status":     string(triage.StatusLabel(annotation.StatusCode)),
		"statusCode": annotation.StatusCode,
		"score":      annotation.Score,
		"annotated":  true,
		"createdBy":  annotation.CreatedBy,
		"updatedAt":  annotation.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// GetPostDetail returns the shared post record, gated by the same
// reachability rules as the triage views.
func (s *Service) GetPostDetail(ctx context.Context, session Session, postID string) (map[string]any, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReach(ctx, store.KindPost, postID, session.WorkspaceID); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          post.ID,
		"communityId": post.CommunityID,
		"title":       post.Title,
		"body":        post.Body,
		"author":      post.Author,
		"sourceScore": post.SourceScore,
		"postedAt":    post.PostedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) WorkspaceProfile(ctx context.Context, session Session) (map[string]any, error) {
	workspace, err := s.store.GetWorkspace(ctx, session.WorkspaceID)
	if err != nil {
		return nil, err
	}
	keywords, err := s.store.ListKeywords(ctx, session.WorkspaceID)
	if err != nil {
		return nil, err
	}
	tracked, err := s.store.ListTrackedCommunities(ctx, session.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":                 workspace.ID,
		"name":               workspace.Name,
		"slug":               workspace.Slug,
		"role":               session.Role,
		"keywordCount":       len(keywords),
		"trackedCommunities": len(tracked),
	}, nil
}

func (s *Service) ListWorkspaceKeywords(ctx context.Context, workspaceID string) ([]map[string]any, error) {
	keywords, err := s.store.ListKeywords(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(keywords))
	for _, keyword := range keywords {
		items = append(items, map[string]any{
			"id":        keyword.ID,
			"term":      keyword.Term,
			"createdAt": keyword.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items, nil
}

func (s *Service) AddKeyword(ctx context.Context, workspaceID, term string) (map[string]any, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, errValidation("term is required", nil)
	}
	keyword := store.Keyword{
		ID:          util.NewRowID(),
		WorkspaceID: workspaceID,
		Term:        term,
	}
	inserted, err := s.store.InsertKeyword(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, domainError(409, "KEYWORD_EXISTS", "Keyword already tracked", nil)
	}
	return map[string]any{"id": keyword.ID, "term": keyword.Term}, nil
}

func (s *Service) RemoveKeyword(ctx context.Context, workspaceID, keywordID string) error {
	deleted, err := s.store.DeleteKeyword(ctx, workspaceID, keywordID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound()
	}
	return nil
}

func (s *Service) TrackedCommunities(ctx context.Context, workspaceID string) ([]map[string]any, error) {
	communities, err := s.store.ListTrackedCommunities(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(communities))
	for _, community := range communities {
		items = append(items, map[string]any{
			"id":   community.ID,
			"name": community.Name,
		})
	}
	return items, nil
}

func (s *Service) TrackCommunity(ctx context.Context, workspaceID, communityID string) (map[string]any, error) {
	community, err := s.store.GetCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	if err := s.store.TrackCommunity(ctx, workspaceID, communityID); err != nil {
		return nil, err
	}
	return map[string]any{"id": community.ID, "name": community.Name, "tracked": true}, nil
}

func (s *Service) UntrackCommunity(ctx context.Context, workspaceID, communityID string) error {
	removed, err := s.store.UntrackCommunity(ctx, workspaceID, communityID)
	if err != nil {
		return err
	}
	if !removed {
		return errNotFound()
	}
	return nil
}
