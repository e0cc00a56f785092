package store

import "time"

// ItemKind discriminates the two shared content tables.
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	// Resolved via workspace_memberships; empty when the user has no
	// workspace.
	WorkspaceID string
	Role        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Workspace struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Community is a subreddit-equivalent grouping of shared content.
type Community struct {
	ID   string
	Name string
}

// Post is immutable shared content written by the ingestion pipeline.
// SourceScore is the score the item carried at ingestion time and is never
// mutated here.
type Post struct {
	ID          string
	CommunityID string
	Title       string
	Body        string
	Author      string
	SourceScore int
	PostedAt    time.Time
}

type Comment struct {
	ID          string
	PostID      string
	Body        string
	Author      string
	SourceScore int
	PostedAt    time.Time
}

// Keyword is a term tracked by exactly one workspace. Keyword links on posts
// and comments are written by ingestion and only read here.
type Keyword struct {
	ID          string
	WorkspaceID string
	Term        string
	CreatedAt   time.Time
}

// Annotation is the workspace-private triage overlay on a content item.
// At most one row exists per (WorkspaceID, ItemID); CreatedBy is set only at
// creation and rows are never deleted.
type Annotation struct {
	WorkspaceID string
	ItemID      string
	ItemKind    ItemKind
	StatusCode  int
	Score       int
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
