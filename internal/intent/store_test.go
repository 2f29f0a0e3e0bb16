package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbchat/internal/domain"
)

// fixedClock returns strictly increasing timestamps so List order is
// deterministic in tests.
func fixedClock() func() time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestCreatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStore(dir)
	require.NoError(t, err)

	created, err := s.Create(domain.Intent{
		Name:      "pricing",
		Patterns:  []string{"price", "cost"},
		Responses: []string{"See our pricing page."},
		Enabled:   true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.ActionRetrieval, created.ActionType)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	list := reopened.List()
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Equal(t, []string{"price", "cost"}, list[0].Patterns)
}

func TestCreateValidation(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Create(domain.Intent{})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = s.Create(domain.Intent{Name: "x", ActionType: "weird"})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = s.Create(domain.Intent{Name: "pricing"})
	require.NoError(t, err)
	_, err = s.Create(domain.Intent{Name: "pricing"})
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	s.now = fixedClock()

	created, err := s.Create(domain.Intent{Name: "hours", ActionType: domain.ActionStatic})
	require.NoError(t, err)

	created.Description = "business hours"
	updated, err := s.Update(created)
	require.NoError(t, err)
	assert.Equal(t, "business hours", updated.Description)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	missing := created
	missing.ID = "nope"
	_, err = s.Update(missing)
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)

	created, err := s.Create(domain.Intent{Name: "hours"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(created.ID))
	assert.Empty(t, s.List())
	require.Error(t, s.Delete(created.ID))
}

func TestListNewestFirst(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	s.now = fixedClock()

	_, err = s.Create(domain.Intent{Name: "older"})
	require.NoError(t, err)
	_, err = s.Create(domain.Intent{Name: "newer"})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Name)
	assert.Equal(t, "older", list[1].Name)
}

func TestMatchSkipsDisabledIntents(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Create(domain.Intent{Name: "off", Patterns: []string{"refund"}, Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, s.Match("I want a refund"))

	_, err = s.Create(domain.Intent{Name: "on", Patterns: []string{"refund"}, Enabled: true})
	require.NoError(t, err)
	matched := s.Match("I want a REFUND")
	require.NotNil(t, matched)
	assert.Equal(t, "on", matched.Name)
}
