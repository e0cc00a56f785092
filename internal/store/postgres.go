package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ─── Users & workspace resolution ───

const userColumns = `
	u.id, u.display_name, u.email, u.password_hash, u.is_email_verified,
	COALESCE(u.verification_token, ''), u.verification_expires_at,
	COALESCE(wm.workspace_id, ''), COALESCE(wm.role, ''),
	u.created_at, u.updated_at
`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.WorkspaceID,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN workspace_memberships wm ON wm.user_id = u.id
		WHERE u.id=$1
	`, userID)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN workspace_memberships wm ON wm.user_id = u.id
		WHERE LOWER(u.email)=LOWER($1)
	`, email)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnsureMembership(ctx context.Context, userID, workspaceID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_memberships (user_id, workspace_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET workspace_id=EXCLUDED.workspace_id, role=EXCLUDED.role
	`, userID, workspaceID, role)
	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var item Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, created_at, updated_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID).Scan(&item.ID, &item.Name, &item.Slug, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertWorkspace(ctx context.Context, workspace Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, slug)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, workspace.ID, workspace.Name, workspace.Slug)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

// ─── Refresh sessions & token revocation ───

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		LEFT JOIN workspace_memberships wm ON wm.user_id = u.id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ─── Shared content ───

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		SELECT id, community_id, title, body, author, source_score, posted_at
		FROM posts
		WHERE id=$1
	`, postID).Scan(&item.ID, &item.CommunityID, &item.Title, &item.Body, &item.Author, &item.SourceScore, &item.PostedAt)
	if err != nil {
		return Post{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, body, author, source_score, posted_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.PostID, &item.Body, &item.Author, &item.SourceScore, &item.PostedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

// SourceScore returns the ingestion-time score of a content item. Callers use
// it to seed annotation rows and synthesize default views; sql.ErrNoRows
// signals the item does not exist.
func (s *PostgresStore) SourceScore(ctx context.Context, kind ItemKind, itemID string) (int, error) {
	table := "posts"
	if kind == KindComment {
		table = "comments"
	}
	var score int
	err := s.db.QueryRowContext(ctx, `SELECT source_score FROM `+table+` WHERE id=$1`, itemID).Scan(&score)
	if err != nil {
		return 0, err
	}
	return score, nil
}

// ─── Reachability predicates ───
//
// Each predicate is an independent existence check; the access resolver ORs
// them, so none of these may have side effects.

func (s *PostgresStore) PostKeywordReach(ctx context.Context, postID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM post_keywords pk
			JOIN keywords k ON k.id = pk.keyword_id
			WHERE pk.post_id=$1 AND k.workspace_id=$2
		)
	`, postID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("post keyword reach: %w", err)
	}
	return reachable, nil
}

func (s *PostgresStore) PostCommunityReach(ctx context.Context, postID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM posts p
			JOIN community_tracks ct ON ct.community_id = p.community_id
			WHERE p.id=$1 AND ct.workspace_id=$2
		)
	`, postID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("post community reach: %w", err)
	}
	return reachable, nil
}

func (s *PostgresStore) PostCommentAnnotationReach(ctx context.Context, postID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM annotations a
			JOIN comments c ON c.id = a.item_id
			WHERE c.post_id=$1 AND a.workspace_id=$2 AND a.item_kind='comment'
		)
	`, postID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("post comment annotation reach: %w", err)
	}
	return reachable, nil
}

func (s *PostgresStore) CommentKeywordReach(ctx context.Context, commentID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM comment_keywords ck
			JOIN keywords k ON k.id = ck.keyword_id
			WHERE ck.comment_id=$1 AND k.workspace_id=$2
		)
	`, commentID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("comment keyword reach: %w", err)
	}
	return reachable, nil
}

func (s *PostgresStore) CommentCommunityReach(ctx context.Context, commentID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM comments c
			JOIN posts p ON p.id = c.post_id
			JOIN community_tracks ct ON ct.community_id = p.community_id
			WHERE c.id=$1 AND ct.workspace_id=$2
		)
	`, commentID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("comment community reach: %w", err)
	}
	return reachable, nil
}

func (s *PostgresStore) CommentAnnotationReach(ctx context.Context, commentID, workspaceID string) (bool, error) {
	var reachable bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM annotations
			WHERE item_id=$1 AND workspace_id=$2 AND item_kind='comment'
		)
	`, commentID, workspaceID).Scan(&reachable)
	if err != nil {
		return false, fmt.Errorf("comment annotation reach: %w", err)
	}
	return reachable, nil
}

// ─── Annotations ───

// GetAnnotation returns the workspace's annotation for an item, or nil when
// no row exists yet.
func (s *PostgresStore) GetAnnotation(ctx context.Context, workspaceID, itemID string) (*Annotation, error) {
	var item Annotation
	err := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, item_id, item_kind, status, score, created_by, created_at, updated_at
		FROM annotations
		WHERE workspace_id=$1 AND item_id=$2
	`, workspaceID, itemID).Scan(
		&item.WorkspaceID,
		&item.ItemID,
		&item.ItemKind,
		&item.StatusCode,
		&item.Score,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get annotation: %w", err)
	}
	return &item, nil
}

// UpsertAnnotationScore writes the score field atomically. A first write
// creates the row with the default status code; later writes touch only the
// score, so two concurrent first writes converge without a check-then-act
// race.
func (s *PostgresStore) UpsertAnnotationScore(ctx context.Context, workspaceID, itemID string, kind ItemKind, score, defaultStatus int, createdBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (workspace_id, item_id, item_kind, status, score, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id, item_id)
		DO UPDATE SET score=EXCLUDED.score, updated_at=NOW()
	`, workspaceID, itemID, kind, defaultStatus, score, createdBy)
	if err != nil {
		return fmt.Errorf("upsert annotation score: %w", err)
	}
	return nil
}

// UpsertAnnotationStatus writes the status field atomically. seedScore is the
// item's source score and is persisted only when the insert branch runs.
func (s *PostgresStore) UpsertAnnotationStatus(ctx context.Context, workspaceID, itemID string, kind ItemKind, statusCode, seedScore int, createdBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (workspace_id, item_id, item_kind, status, score, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id, item_id)
		DO UPDATE SET status=EXCLUDED.status, updated_at=NOW()
	`, workspaceID, itemID, kind, statusCode, seedScore, createdBy)
	if err != nil {
		return fmt.Errorf("upsert annotation status: %w", err)
	}
	return nil
}

// ─── Keywords ───

func (s *PostgresStore) ListKeywords(ctx context.Context, workspaceID string) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, term, created_at
		FROM keywords
		WHERE workspace_id=$1
		ORDER BY term ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	items := make([]Keyword, 0)
	for rows.Next() {
		var item Keyword
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.Term, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return items, nil
}

// InsertKeyword reports false when the workspace already tracks the term.
func (s *PostgresStore) InsertKeyword(ctx context.Context, keyword Keyword) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO keywords (id, workspace_id, term)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, term) DO NOTHING
	`, keyword.ID, keyword.WorkspaceID, keyword.Term)
	if err != nil {
		return false, fmt.Errorf("insert keyword: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert keyword rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteKeyword(ctx context.Context, workspaceID, keywordID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM keywords WHERE id=$1 AND workspace_id=$2
	`, keywordID, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete keyword: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete keyword rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) LinkPostKeyword(ctx context.Context, postID, keywordID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO post_keywords (post_id, keyword_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, postID, keywordID)
	if err != nil {
		return fmt.Errorf("link post keyword: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkCommentKeyword(ctx context.Context, commentID, keywordID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_keywords (comment_id, keyword_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, commentID, keywordID)
	if err != nil {
		return fmt.Errorf("link comment keyword: %w", err)
	}
	return nil
}

// ─── Tracked communities ───

func (s *PostgresStore) ListTrackedCommunities(ctx context.Context, workspaceID string) ([]Community, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name
		FROM community_tracks ct
		JOIN communities c ON c.id = ct.community_id
		WHERE ct.workspace_id=$1
		ORDER BY c.name ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tracked communities: %w", err)
	}
	defer rows.Close()

	items := make([]Community, 0)
	for rows.Next() {
		var item Community
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan community: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) TrackCommunity(ctx context.Context, workspaceID, communityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO community_tracks (workspace_id, community_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, workspaceID, communityID)
	if err != nil {
		return fmt.Errorf("track community: %w", err)
	}
	return nil
}

func (s *PostgresStore) UntrackCommunity(ctx context.Context, workspaceID, communityID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM community_tracks WHERE workspace_id=$1 AND community_id=$2
	`, workspaceID, communityID)
	if err != nil {
		return false, fmt.Errorf("untrack community: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("untrack community rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) GetCommunity(ctx context.Context, communityID string) (Community, error) {
	var item Community
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM communities WHERE id=$1`, communityID).Scan(&item.ID, &item.Name)
	if err != nil {
		return Community{}, err
	}
	return item, nil
}

// ─── Seeding support ───

func (s *PostgresStore) PostCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertCommunity(ctx context.Context, community Community) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communities (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, community.ID, community.Name)
	if err != nil {
		return fmt.Errorf("insert community: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, community_id, title, body, author, source_score, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, post.ID, post.CommunityID, post.Title, post.Body, post.Author, post.SourceScore, post.PostedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, body, author, source_score, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, comment.ID, comment.PostID, comment.Body, comment.Author, comment.SourceScore, comment.PostedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}
