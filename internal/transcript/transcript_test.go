package transcript

import (
	"testing"
	"time"
)

func TestCommitTurn_UserPrecedesModel(t *testing.T) {
	a := New(nil, nil)
	a.AppendModel("Let's start with your background.")
	a.AppendUser("I have five years ")
	a.AppendUser("of Go experience.")

	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	committed := a.CommitTurn(now)

	if len(committed) != 2 {
		t.Fatalf("committed %d items, want 2", len(committed))
	}
	if committed[0].Role != RoleUser || committed[0].Text != "I have five years of Go experience." {
		t.Fatalf("first item = %+v, want user text", committed[0])
	}
	if committed[1].Role != RoleModel || committed[1].Text != "Let's start with your background." {
		t.Fatalf("second item = %+v, want model text", committed[1])
	}
	for i, item := range committed {
		if item.ID == "" {
			t.Fatalf("item %d has empty ID", i)
		}
		if !item.Timestamp.Equal(now) {
			t.Fatalf("item %d timestamp = %v, want %v", i, item.Timestamp, now)
		}
	}
}

func TestCommitTurn_SkipsEmptyAndWhitespaceOnlyBuffers(t *testing.T) {
	a := New(nil, nil)
	a.AppendUser("   \n\t ")
	a.AppendModel("Only the model spoke.")

	committed := a.CommitTurn(time.Now())
	if len(committed) != 1 {
		t.Fatalf("committed %d items, want 1", len(committed))
	}
	if committed[0].Role != RoleModel {
		t.Fatalf("role = %q, want model", committed[0].Role)
	}

	if got := a.CommitTurn(time.Now()); len(got) != 0 {
		t.Fatalf("empty commit produced %d items", len(got))
	}
	if got := len(a.Items()); got != 1 {
		t.Fatalf("transcript has %d items, want 1", got)
	}
}

func TestFragmentsAccumulateAcrossMessages(t *testing.T) {
	var previews []string
	var committed []Item
	a := New(
		func(p string) { previews = append(previews, p) },
		func(item Item) { committed = append(committed, item) },
	)

	a.AppendModel("Hello")
	a.AppendModel(" there")
	a.CommitTurn(time.Now())

	if len(committed) != 1 || committed[0].Text != "Hello there" {
		t.Fatalf("committed = %+v, want one item %q", committed, "Hello there")
	}
	want := []string{"Hello", "Hello there", ""}
	if len(previews) != len(want) {
		t.Fatalf("previews = %v, want %v", previews, want)
	}
	for i := range want {
		if previews[i] != want[i] {
			t.Fatalf("previews = %v, want %v", previews, want)
		}
	}
}

func TestDiscardModel_DropsInFlightTurnOnly(t *testing.T) {
	a := New(nil, nil)
	a.AppendUser("user kept")
	a.AppendModel("model discarded")

	a.DiscardModel()
	if got := a.Preview(); got != "" {
		t.Fatalf("preview after discard = %q, want empty", got)
	}

	committed := a.CommitTurn(time.Now())
	if len(committed) != 1 || committed[0].Role != RoleUser {
		t.Fatalf("committed = %+v, want only the user item", committed)
	}
}

func TestItems_ReturnsCopyInCommitOrder(t *testing.T) {
	a := New(nil, nil)
	a.AppendModel("first")
	a.CommitTurn(time.Now())
	a.AppendModel("second")
	a.CommitTurn(time.Now())

	items := a.Items()
	if len(items) != 2 || items[0].Text != "first" || items[1].Text != "second" {
		t.Fatalf("items = %+v", items)
	}
	items[0].Text = "mutated"
	if a.Items()[0].Text != "first" {
		t.Fatalf("Items() must return a copy")
	}
}
