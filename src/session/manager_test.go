package session

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns strictly increasing times.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestGetOrCreate_SameConnectionReturnsSameSession(t *testing.T) {
	m := NewManager()

	first := m.GetOrCreate("conn-1")
	second := m.GetOrCreate("conn-1")

	assert.Same(t, first, second)
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, 1, m.Count())
}

func TestGetOrCreate_ConcurrentCallsCreateOnce(t *testing.T) {
	m := NewManager()

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = m.GetOrCreate("shared").ID()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, m.Count())
}

func TestGetOrCreate_DifferentConnectionsAreIsolated(t *testing.T) {
	m := NewManager()

	m.AppendMessage("a", RoleUser, "hello from a", "")
	m.AppendMessage("b", RoleUser, "hello from b", "")

	assert.NotEqual(t, m.GetOrCreate("a").ID(), m.GetOrCreate("b").ID())
	require.Len(t, m.RecentMessages("a", 10), 1)
	assert.Equal(t, "hello from a", m.RecentMessages("a", 10)[0].Content)
}

func TestRemove_ThenGetOrCreateYieldsFreshSession(t *testing.T) {
	m := NewManager()

	old := m.GetOrCreate("conn-1")
	m.AppendMessage("conn-1", RoleUser, "hi", "")
	m.Remove("conn-1")

	_, ok := m.Get("conn-1")
	assert.False(t, ok)

	fresh := m.GetOrCreate("conn-1")
	assert.NotEqual(t, old.ID(), fresh.ID())
	assert.Equal(t, 0, fresh.Len())
}

func TestRemove_UnknownIsNoop(t *testing.T) {
	m := NewManager()
	m.Remove("missing")
	assert.Equal(t, 0, m.Count())
}

func TestRecentMessages_ReturnsTailInOrder(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		count  int
		expect []string
	}{
		{name: "fewer than window", total: 3, count: 10, expect: []string{"m0", "m1", "m2"}},
		{name: "exact window", total: 4, count: 4, expect: []string{"m0", "m1", "m2", "m3"}},
		{name: "larger history", total: 6, count: 2, expect: []string{"m4", "m5"}},
		{name: "zero count", total: 3, count: 0, expect: []string{}},
		{name: "negative count", total: 3, count: -1, expect: []string{}},
		{name: "empty session", total: 0, count: 5, expect: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(WithClock(fakeClock()))
			for i := 0; i < tt.total; i++ {
				m.AppendMessage("c", RoleUser, fmt.Sprintf("m%d", i), "")
			}

			got := m.RecentMessages("c", tt.count)
			contents := make([]string, 0, len(got))
			for _, turn := range got {
				contents = append(contents, turn.Content)
			}
			assert.Equal(t, tt.expect, contents)
		})
	}
}

func TestRecentMessages_RoundTripBeyondTotal(t *testing.T) {
	m := NewManager(WithClock(fakeClock()))

	const n = 7
	var want []Turn
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		image := ""
		if i == 2 {
			image = "data:image/png;base64,AAAA"
		}
		m.AppendMessage("c", role, fmt.Sprintf("turn %d", i), image)
		want = append(want, Turn{Role: role, Content: fmt.Sprintf("turn %d", i), ImageData: image})
	}

	got := m.RecentMessages("c", n+5)
	require.Len(t, got, n)
	for i := range want {
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.Equal(t, want[i].ImageData, got[i].ImageData)
		if i > 0 {
			assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
		}
	}
}

func TestAppend_UpdatesLastActivity(t *testing.T) {
	m := NewManager(WithClock(fakeClock()))

	s := m.GetOrCreate("c")
	created := s.CreatedAt()
	assert.Equal(t, created, s.LastActivity())

	m.AppendMessage("c", RoleUser, "hi", "")
	assert.True(t, s.LastActivity().After(created))
}

func TestAppend_LazilyCreatesSession(t *testing.T) {
	m := NewManager()

	m.AppendMessage("lazy", RoleUser, "hi", "")

	s, ok := m.Get("lazy")
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestAppendTurns_KeepsExchangeContiguous(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AppendTurns("c",
				Turn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
				Turn{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			)
		}(i)
	}
	wg.Wait()

	turns := m.GetOrCreate("c").Turns()
	require.Len(t, turns, 40)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, RoleUser, turns[i].Role)
		assert.Equal(t, RoleAssistant, turns[i+1].Role)
		assert.Equal(t, "a"+turns[i].Content[1:], turns[i+1].Content)
	}
}

func TestAppendTurns_LeavesCallerSliceUntouched(t *testing.T) {
	m := NewManager(WithClock(fakeClock()))

	exchange := []Turn{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	}
	m.AppendTurns("c", exchange...)

	for _, turn := range exchange {
		assert.True(t, turn.Timestamp.IsZero())
	}
	for _, turn := range m.GetOrCreate("c").Turns() {
		assert.False(t, turn.Timestamp.IsZero())
	}
}

func TestAppendTurns_LogsConnectionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := NewManager(WithLogger(logger))

	m.AppendMessage("conn-42", RoleUser, "hi", "")

	assert.Contains(t, buf.String(), `"msg":"appended turn"`)
	assert.Contains(t, buf.String(), `"connection_id":"conn-42"`)
}

func TestMaxTurns_DropsOldest(t *testing.T) {
	m := NewManager(WithMaxTurns(3), WithClock(fakeClock()))

	for i := 0; i < 5; i++ {
		m.AppendMessage("c", RoleUser, fmt.Sprintf("m%d", i), "")
	}

	turns := m.GetOrCreate("c").Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "m2", turns[0].Content)
	assert.Equal(t, "m4", turns[2].Content)
}

func TestTurns_ReturnsCopy(t *testing.T) {
	m := NewManager()
	m.AppendMessage("c", RoleUser, "original", "")

	turns := m.GetOrCreate("c").Turns()
	turns[0].Content = "mutated"

	assert.Equal(t, "original", m.RecentMessages("c", 1)[0].Content)
}
