package application

import (
	"context"
	"fmt"

	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
	"github.com/rosterhub/rosterhub/internal/pagetoken"
)

// RosterPage is one rendered page of the roster listing plus the pagination
// capabilities for moving away from it. PrevToken and NextToken are empty at
// the respective edges of the listing.
type RosterPage struct {
	Members   []model.Member
	Page      int
	PageCount int
	Total     int
	PrevToken string
	NextToken string
}

// RosterService serves roster listings, lookups, and maintenance operations.
// Listings are paginated with self-contained tokens issued by the codec;
// every successful redemption re-renders the listing and issues fresh tokens.
type RosterService struct {
	members  driven.MemberStore
	codec    *pagetoken.Codec
	pageSize int
}

// NewRosterService creates a RosterService with the given page size.
func NewRosterService(members driven.MemberStore, codec *pagetoken.Codec, pageSize int) *RosterService {
	if pageSize < 1 {
		pageSize = 1
	}
	return &RosterService{
		members:  members,
		codec:    codec,
		pageSize: pageSize,
	}
}

// Page renders the requested page for the given actor. The requested page is
// clamped into [1, pageCount]; fresh prev/next tokens bound to the actor are
// issued for the pages adjacent to the rendered one.
func (s *RosterService) Page(ctx context.Context, actorID string, requested int) (RosterPage, error) {
	all := sortedMembers(s.members.Load(ctx))

	total := len(all)
	pageCount := model.PageCount(total, s.pageSize)
	page := model.ClampPage(requested, pageCount)

	lo := (page - 1) * s.pageSize
	hi := lo + s.pageSize
	if lo > total {
		lo = total
	}
	if hi > total {
		hi = total
	}

	result := RosterPage{
		Members:   all[lo:hi],
		Page:      page,
		PageCount: pageCount,
		Total:     total,
	}

	if page > 1 {
		token, err := s.codec.Issue(model.PageActionPrev, page-1, actorID)
		if err != nil {
			return RosterPage{}, fmt.Errorf("issue prev token: %w", err)
		}
		result.PrevToken = token
	}
	if page < pageCount {
		token, err := s.codec.Issue(model.PageActionNext, page+1, actorID)
		if err != nil {
			return RosterPage{}, fmt.Errorf("issue next token: %w", err)
		}
		result.NextToken = token
	}

	return result, nil
}

// Redeem validates a pagination token for the redeemer and, on success,
// renders the target page with freshly issued tokens. Expiry and ownership
// failures pass through as pagetoken sentinel errors.
func (s *RosterService) Redeem(ctx context.Context, token, redeemerID string) (RosterPage, error) {
	_, target, err := s.codec.Redeem(token, redeemerID)
	if err != nil {
		return RosterPage{}, err
	}
	return s.Page(ctx, redeemerID, target)
}

// Lookup returns a single record, or nil if absent.
func (s *RosterService) Lookup(ctx context.Context, id string) *model.Member {
	members := s.members.Load(ctx)
	if m, ok := members[id]; ok {
		return &m
	}
	return nil
}

// RepeatOrigins partitions the roster by origin address and returns only the
// equivalence classes with more than one member, surfacing identities that
// verified from the same network origin. The unknown-origin class is skipped.
func (s *RosterService) RepeatOrigins(ctx context.Context) map[string][]model.Member {
	byOrigin := make(map[string][]model.Member)
	for _, m := range sortedMembers(s.members.Load(ctx)) {
		if m.OriginAddr == "" || m.OriginAddr == model.DefaultOrigin {
			continue
		}
		byOrigin[m.OriginAddr] = append(byOrigin[m.OriginAddr], m)
	}

	for origin, group := range byOrigin {
		if len(group) < 2 {
			delete(byOrigin, origin)
		}
	}
	return byOrigin
}

// Remove deletes one record, reporting whether it existed.
func (s *RosterService) Remove(ctx context.Context, id string) bool {
	return s.members.Remove(ctx, id)
}

// Clear deletes every record and returns how many were removed.
func (s *RosterService) Clear(ctx context.Context) int {
	return s.members.Clear(ctx)
}

// Sweep removes records with unusable tokens and returns how many were removed.
func (s *RosterService) Sweep(ctx context.Context) int {
	return s.members.Sweep(ctx)
}
