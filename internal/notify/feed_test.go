package notify

import (
	"fmt"
	"testing"
	"time"
)

func TestFeedKeepsNewestFirst(t *testing.T) {
	feed := NewFeed(2)
	feed.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	for i := 0; i < 3; i++ {
		feed.Notify(Notification{Message: fmt.Sprintf("msg-%d", i)})
	}

	got := feed.Recent()
	if len(got) != 2 {
		t.Fatalf("expected 2 items got %d", len(got))
	}
	if got[0].Message != "msg-2" || got[1].Message != "msg-1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].ID == "" || got[0].Level != LevelInfo {
		t.Fatalf("expected defaults to be filled: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("unexpected timestamp %v", got[0].CreatedAt)
	}
}
