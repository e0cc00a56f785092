package app

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lookout/api/internal/store"
	"lookout/api/internal/util"
)

// Bootstrap seeds a demo workspace with enough shared content to exercise
// every reachability route. It is a no-op once any post exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.PostCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	workspace := store.Workspace{
		ID:   "ws-demo",
		Name: "Demo Workspace",
		Slug: "demo",
	}
	if err := s.store.InsertWorkspace(ctx, workspace); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	owner := store.User{
		ID:              util.NewRowID(),
		DisplayName:     "Avery",
		Email:           "avery@demo.lookout.dev",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
	if err := s.store.CreateUser(ctx, owner); err != nil {
		return err
	}
	if err := s.store.EnsureMembership(ctx, owner.ID, workspace.ID, "admin"); err != nil {
		return err
	}

	communities := []store.Community{
		{ID: "c-selfhosted", Name: "selfhosted"},
		{ID: "c-observability", Name: "observability"},
	}
	for _, community := range communities {
		if err := s.store.InsertCommunity(ctx, community); err != nil {
			return err
		}
	}

	postedAt := time.Now().Add(-48 * time.Hour)
	posts := []store.Post{
		{
			ID:          "p-uptime",
			CommunityID: "c-selfhosted",
			Title:       "What do you use for uptime monitoring?",
			Body:        "Looking for something lightweight that can page me when my reverse proxy dies.",
			Author:      "rackmount_ron",
			SourceScore: 62,
			PostedAt:    postedAt,
		},
		{
			ID:          "p-tracing",
			CommunityID: "c-observability",
			Title:       "Distributed tracing on a shoestring budget",
			Body:        "We instrumented everything and now the storage bill is bigger than the cluster.",
			Author:      "span_collector",
			SourceScore: 140,
			PostedAt:    postedAt.Add(3 * time.Hour),
		},
		{
			ID:          "p-backup",
			CommunityID: "c-selfhosted",
			Title:       "Backup strategy horror stories",
			Body:        "Tested my restores for the first time in two years. It did not go well.",
			Author:      "tape_rotation",
			SourceScore: 18,
			PostedAt:    postedAt.Add(8 * time.Hour),
		},
	}
	for _, post := range posts {
		if err := s.store.InsertPost(ctx, post); err != nil {
			return err
		}
	}

	comments := []store.Comment{
		{
			ID:          "cm-uptime-1",
			PostID:      "p-uptime",
			Body:        "Uptime Kuma has been rock solid for me, runs happily on a Pi.",
			Author:      "green_checkmarks",
			SourceScore: 31,
			PostedAt:    postedAt.Add(time.Hour),
		},
		{
			ID:          "cm-uptime-2",
			PostID:      "p-uptime",
			Body:        "Whatever you pick, monitor it from outside your own network.",
			Author:      "offsite_observer",
			SourceScore: 12,
			PostedAt:    postedAt.Add(2 * time.Hour),
		},
		{
			ID:          "cm-tracing-1",
			PostID:      "p-tracing",
			Body:        "Tail-based sampling cut our span volume by 90% with no visible loss.",
			Author:      "p99_chaser",
			SourceScore: 55,
			PostedAt:    postedAt.Add(4 * time.Hour),
		},
	}
	for _, comment := range comments {
		if err := s.store.InsertComment(ctx, comment); err != nil {
			return err
		}
	}

	keyword := store.Keyword{
		ID:          util.NewRowID(),
		WorkspaceID: workspace.ID,
		Term:        "monitoring",
	}
	if _, err := s.store.InsertKeyword(ctx, keyword); err != nil {
		return err
	}
	if err := s.store.LinkPostKeyword(ctx, "p-uptime", keyword.ID); err != nil {
		return err
	}
	if err := s.store.LinkCommentKeyword(ctx, "cm-uptime-1", keyword.ID); err != nil {
		return err
	}

	return s.store.TrackCommunity(ctx, workspace.ID, "c-observability")
}
