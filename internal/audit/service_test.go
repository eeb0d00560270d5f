package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	err      error
	lastCall TimelineParams
}

func (s *stubTimelineRepo) Timeline(ctx context.Context, arg TimelineParams) ([]TimelineRow, error) {
	s.lastCall = arg
	return s.rows, s.err
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		rows: []TimelineRow{
			mockRow(3, "2024-03-10T10:00:00Z", "clerk:1", "sales:order:status", "order", "12"),
			mockRow(2, "2024-03-09T09:00:00Z", "clerk:1", "sales:order:payment", "order", "12"),
			mockRow(1, "2024-03-08T08:00:00Z", "clerk:1", "sales:order:create", "order", "12"),
		},
	}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Entity:   "order",
		EntityID: "12",
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastCall.LimitRows != 3 || repo.lastCall.OffsetRows != 0 {
		t.Fatalf("unexpected window limit=%d offset=%d", repo.lastCall.LimitRows, repo.lastCall.OffsetRows)
	}
	if repo.lastCall.EntityID != (pgtype.Text{String: "12", Valid: true}) {
		t.Fatalf("expected entity id filter, got %+v", repo.lastCall.EntityID)
	}
	if repo.lastCall.Actor != (pgtype.Text{}) {
		t.Fatalf("expected actor filter empty")
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.LimitRows != 51 || repo.lastCall.OffsetRows != 100 {
		t.Fatalf("unexpected window limit=%d offset=%d", repo.lastCall.LimitRows, repo.lastCall.OffsetRows)
	}
	if repo.lastCall.FromAt.Valid {
		t.Fatal("zero from should be unbounded")
	}
	if result.Rows == nil || result.Paging.PrevPage != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestServiceTimelineErrors(t *testing.T) {
	if _, err := NewService(nil).Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatal("expected error without repository")
	}
	boom := errors.New("boom")
	if _, err := NewService(&stubTimelineRepo{err: boom}).Timeline(context.Background(), TimelineFilters{}); !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func mockRow(id int64, ts, actor, action, entity, entityID string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{ID: id, At: at, Actor: actor, Action: action, Entity: entity, EntityID: entityID}
}
