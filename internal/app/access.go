package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lookout/api/internal/store"
)

// predicateTimeout bounds each reachability query so one slow index scan
// cannot stall the whole access check.
const predicateTimeout = 3 * time.Second

type reachPredicate func(ctx context.Context) (bool, error)

// HasItemAccess reports whether a workspace can see an item. An item is
// reachable when any one of three routes holds: a tracked keyword links to
// it, its community (or its parent post's community, for comments) is
// tracked, or the workspace has already annotated it — for posts, an
// annotation on any comment under the post also counts.
func (s *Service) HasItemAccess(ctx context.Context, kind store.ItemKind, itemID, workspaceID string) (bool, error) {
	var predicates []reachPredicate
	switch kind {
	case store.KindPost:
		predicates = []reachPredicate{
			func(ctx context.Context) (bool, error) {
				return s.store.PostKeywordReach(ctx, itemID, workspaceID)
			},
			func(ctx context.Context) (bool, error) {
				return s.store.PostCommunityReach(ctx, itemID, workspaceID)
			},
			func(ctx context.Context) (bool, error) {
				return s.store.PostCommentAnnotationReach(ctx, itemID, workspaceID)
			},
		}
	case store.KindComment:
		predicates = []reachPredicate{
			func(ctx context.Context) (bool, error) {
				return s.store.CommentKeywordReach(ctx, itemID, workspaceID)
			},
			func(ctx context.Context) (bool, error) {
				return s.store.CommentCommunityReach(ctx, itemID, workspaceID)
			},
			func(ctx context.Context) (bool, error) {
				return s.store.CommentAnnotationReach(ctx, itemID, workspaceID)
			},
		}
	default:
		return false, fmt.Errorf("unknown item kind %q", kind)
	}
	return anyReachable(ctx, predicates)
}

// requireReach converts a negative access check into the same not-found
// error a missing item produces.
func (s *Service) requireReach(ctx context.Context, kind store.ItemKind, itemID, workspaceID string) error {
	ok, err := s.HasItemAccess(ctx, kind, itemID, workspaceID)
	if err != nil {
		return err
	}
	if !ok {
		return errNotFound()
	}
	return nil
}

// anyReachable runs the predicates concurrently and returns true as soon as
// one of them succeeds, cancelling the rest. A predicate that fails counts
// as false; the check only errors when every predicate failed, so a single
// degraded query path cannot block access the other routes would grant.
func anyReachable(ctx context.Context, predicates []reachPredicate) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	results := make(chan outcome, len(predicates))
	for _, predicate := range predicates {
		go func(predicate reachPredicate) {
			pctx, pcancel := context.WithTimeout(ctx, predicateTimeout)
			defer pcancel()
			ok, err := predicate(pctx)
			results <- outcome{ok: ok, err: err}
		}(predicate)
	}

	var failures []error
	for range predicates {
		result := <-results
		if result.err != nil {
			failures = append(failures, result.err)
			continue
		}
		if result.ok {
			return true, nil
		}
	}
	if len(failures) == len(predicates) {
		return false, errors.Join(failures...)
	}
	return false, nil
}
