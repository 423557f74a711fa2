package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flux/pkg/api"
)

// StoreSuite runs the same behavioural checks against every Store backend.
// newStore must return an empty store.
type StoreSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
	base     time.Time
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
	s.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) state(id, name string, status api.Status, offset int) *api.WorkflowState {
	created := s.base.Add(time.Duration(offset) * time.Second)
	return &api.WorkflowState{
		ID:          id,
		Name:        name,
		Input:       map[string]any{"value": offset},
		Data:        map[string]any{"result": offset * 2},
		Status:      status,
		CurrentStep: 0,
		History: []api.StepExecution{
			{Name: "first", Status: api.StepPending},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (s *StoreSuite) TestSaveLoad() {
	st := s.state("wf-1", "orders", api.StatusRunning, 1)
	s.Require().NoError(s.store.Save(s.ctx, st))

	got, err := s.store.Load(s.ctx, "wf-1")
	s.Require().NoError(err)
	s.Equal("orders", got.Name)
	s.Equal(api.StatusRunning, got.Status)
	s.Equal(map[string]any{"result": 2}, got.Data)
	s.True(got.CreatedAt.Equal(st.CreatedAt))
	s.Require().Len(got.History, 1)
	s.Equal("first", got.History[0].Name)
}

func (s *StoreSuite) TestSaveOverwrites() {
	st := s.state("wf-1", "orders", api.StatusRunning, 1)
	s.Require().NoError(s.store.Save(s.ctx, st))

	now := s.base.Add(time.Minute)
	st.Status = api.StatusCompleted
	st.CurrentStep = 0
	st.History[0].Status = api.StepCompleted
	st.CompletedAt = &now
	st.Data["extra"] = "yes"
	s.Require().NoError(s.store.Save(s.ctx, st))

	got, err := s.store.Load(s.ctx, "wf-1")
	s.Require().NoError(err)
	s.Equal(api.StatusCompleted, got.Status)
	s.Equal(api.StepCompleted, got.History[0].Status)
	s.Equal("yes", got.Data["extra"])
	s.Require().NotNil(got.CompletedAt)
	s.True(got.CompletedAt.Equal(now))

	all, err := s.store.List(s.ctx, api.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *StoreSuite) TestLoadMissing() {
	_, err := s.store.Load(s.ctx, "does-not-exist")
	s.ErrorIs(err, ErrStateNotFound)
}

func (s *StoreSuite) TestListFiltersAndOrders() {
	s.Require().NoError(s.store.Save(s.ctx, s.state("c", "orders", api.StatusCompleted, 3)))
	s.Require().NoError(s.store.Save(s.ctx, s.state("a", "orders", api.StatusRunning, 1)))
	s.Require().NoError(s.store.Save(s.ctx, s.state("b", "billing", api.StatusRunning, 2)))
	s.Require().NoError(s.store.Save(s.ctx, s.state("d", "orders", api.StatusFailed, 4)))

	all, err := s.store.List(s.ctx, api.ListFilter{})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c", "d"}, ids(all))

	orders, err := s.store.List(s.ctx, api.ListFilter{Name: "orders"})
	s.Require().NoError(err)
	s.Equal([]string{"a", "c", "d"}, ids(orders))

	running, err := s.store.List(s.ctx, api.ListFilter{Status: api.StatusRunning})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, ids(running))

	both, err := s.store.List(s.ctx, api.ListFilter{Name: "orders", Status: api.StatusRunning})
	s.Require().NoError(err)
	s.Equal([]string{"a"}, ids(both))

	none, err := s.store.List(s.ctx, api.ListFilter{Name: "unknown"})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *StoreSuite) TestListStatusIndexFollowsUpdates() {
	st := s.state("wf-1", "orders", api.StatusRunning, 1)
	s.Require().NoError(s.store.Save(s.ctx, st))
	st.Status = api.StatusSuspended
	s.Require().NoError(s.store.Save(s.ctx, st))

	running, err := s.store.List(s.ctx, api.ListFilter{Status: api.StatusRunning})
	s.Require().NoError(err)
	s.Empty(running)

	suspended, err := s.store.List(s.ctx, api.ListFilter{Status: api.StatusSuspended})
	s.Require().NoError(err)
	s.Equal([]string{"wf-1"}, ids(suspended))
}

func (s *StoreSuite) TestListPaging() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Save(s.ctx, s.state(fmt.Sprintf("wf-%d", i), "orders", api.StatusCompleted, i)))
	}

	first, err := s.store.List(s.ctx, api.ListFilter{Limit: 2})
	s.Require().NoError(err)
	s.Equal([]string{"wf-0", "wf-1"}, ids(first))

	second, err := s.store.List(s.ctx, api.ListFilter{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Equal([]string{"wf-2", "wf-3"}, ids(second))

	rest, err := s.store.List(s.ctx, api.ListFilter{Offset: 3})
	s.Require().NoError(err)
	s.Equal([]string{"wf-3", "wf-4"}, ids(rest))

	past, err := s.store.List(s.ctx, api.ListFilter{Offset: 10})
	s.Require().NoError(err)
	s.Empty(past)
}

func (s *StoreSuite) TestDelete() {
	s.Require().NoError(s.store.Save(s.ctx, s.state("wf-1", "orders", api.StatusRunning, 1)))
	s.Require().NoError(s.store.Delete(s.ctx, "wf-1"))

	_, err := s.store.Load(s.ctx, "wf-1")
	s.ErrorIs(err, ErrStateNotFound)

	all, err := s.store.List(s.ctx, api.ListFilter{Status: api.StatusRunning})
	s.Require().NoError(err)
	s.Empty(all)

	s.NoError(s.store.Delete(s.ctx, "wf-1"), "deleting twice is not an error")
}

func ids(states []*api.WorkflowState) []string {
	out := make([]string, 0, len(states))
	for _, st := range states {
		out = append(out, st.ID)
	}
	return out
}
