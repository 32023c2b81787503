package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/haasonsaas/mcpbot/pkg/models"
)

func TestGetOrCreateStartsEmpty(t *testing.T) {
	store := NewStore()

	turns := store.GetOrCreate(1)
	if turns == nil || len(turns) != 0 {
		t.Fatalf("GetOrCreate() = %v, want empty non-nil", turns)
	}
	if store.Conversations() != 1 {
		t.Errorf("Conversations() = %d, want 1", store.Conversations())
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewStore()
	store.Append(7, models.UserTurn("hi"))
	store.Append(7, models.AssistantTurn("hello"))

	got := store.GetOrCreate(7)
	want := []models.Turn{models.UserTurn("hi"), models.AssistantTurn("hello")}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRecentWindow(t *testing.T) {
	tests := []struct {
		name   string
		stored int
		n      int
		want   []string
	}{
		{name: "empty", stored: 0, n: 5, want: []string{}},
		{name: "shorter than window", stored: 3, n: 5, want: []string{"m0", "m1", "m2"}},
		{name: "exactly window", stored: 5, n: 5, want: []string{"m0", "m1", "m2", "m3", "m4"}},
		{name: "longer than window", stored: 7, n: 5, want: []string{"m2", "m3", "m4", "m5", "m6"}},
		{name: "zero", stored: 3, n: 0, want: []string{}},
		{name: "negative", stored: 3, n: -1, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			for i := 0; i < tt.stored; i++ {
				store.Append(1, models.UserTurn(fmt.Sprintf("m%d", i)))
			}

			got := store.Recent(1, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("Recent() len = %d, want %d", len(got), len(tt.want))
			}
			for i, content := range tt.want {
				if got[i].Content != content {
					t.Errorf("Recent()[%d] = %q, want %q", i, got[i].Content, content)
				}
			}
			if store.Len(1) != tt.stored {
				t.Errorf("Recent() changed history length to %d", store.Len(1))
			}
		})
	}
}

func TestRecentIsIdempotent(t *testing.T) {
	store := NewStore()
	for i := 0; i < 8; i++ {
		store.Append(3, models.UserTurn(fmt.Sprintf("m%d", i)))
	}

	first := store.Recent(3, DefaultWindow)
	second := store.Recent(3, DefaultWindow)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Recent() not idempotent at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	store := NewStore()
	store.Append(1, models.UserTurn("original"))

	got := store.Recent(1, 5)
	got[0].Content = "mutated"
	all := store.GetOrCreate(1)
	all[0].Content = "mutated again"

	if store.Recent(1, 5)[0].Content != "original" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	store := NewStore()
	store.Append(1, models.UserTurn("a"))
	store.Append(2, models.UserTurn("b"))
	store.Append(2, models.AssistantTurn("c"))

	if store.Len(1) != 1 || store.Len(2) != 2 {
		t.Errorf("Len() = %d/%d, want 1/2", store.Len(1), store.Len(2))
	}
}

func TestReset(t *testing.T) {
	store := NewStore()
	store.Append(1, models.UserTurn("a"))
	store.Reset(1)

	if store.Len(1) != 0 {
		t.Errorf("Len() after Reset = %d", store.Len(1))
	}
	if store.Conversations() != 0 {
		t.Errorf("Conversations() after Reset = %d", store.Conversations())
	}
}

func TestConcurrentAppend(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(id models.ConversationID) {
				defer wg.Done()
				store.Append(id, models.UserTurn("x"))
				_ = store.Recent(id, DefaultWindow)
			}(models.ConversationID(c))
		}
	}
	wg.Wait()

	for c := 0; c < 4; c++ {
		if got := store.Len(models.ConversationID(c)); got != 50 {
			t.Errorf("conversation %d has %d turns, want 50", c, got)
		}
	}
}
