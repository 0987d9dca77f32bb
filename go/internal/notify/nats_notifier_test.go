package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func TestNATSNotifier_Schedule(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "focus.notify", nil)
	fireAt := time.Date(2025, 5, 1, 12, 25, 0, 0, time.UTC)

	id, err := n.Schedule(context.Background(), Notification{
		Title:     TitleFocusComplete,
		Body:      BodyTimerFinished,
		FireAt:    fireAt,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if id == "" {
		t.Fatal("Schedule() returned an empty id")
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != "focus.notify.schedule" {
		t.Fatalf("published = %+v", pub.msgs)
	}

	var got Notification
	if err := json.Unmarshal(pub.msgs[0].data, &got); err != nil {
		t.Fatalf("payload is not a notification: %v", err)
	}
	if got.ID != id || got.Title != TitleFocusComplete || !got.FireAt.Equal(fireAt) || got.SessionID != "s1" {
		t.Errorf("payload = %+v", got)
	}
}

func TestNATSNotifier_CancelAll(t *testing.T) {
	pub := &fakePublisher{}
	now := time.Date(2025, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	n := NewNATSNotifier(pub, "focus.notify", clockwork.NewFakeClockAt(now))

	if err := n.CancelAll(context.Background()); err != nil {
		t.Fatalf("CancelAll() error = %v", err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].subject != "focus.notify.cancel" {
		t.Fatalf("published = %+v", pub.msgs)
	}

	var cmd cancelCommand
	if err := json.Unmarshal(pub.msgs[0].data, &cmd); err != nil {
		t.Fatalf("payload is not a cancel command: %v", err)
	}
	if !cmd.RequestedAt.Equal(now) || cmd.RequestedAt.Location() != time.UTC {
		t.Errorf("requested_at = %v, want %v in UTC", cmd.RequestedAt, now)
	}
}

func TestNATSNotifier_PublishErrors(t *testing.T) {
	boom := errors.New("no responders")
	n := NewNATSNotifier(&fakePublisher{err: boom}, "focus.notify", nil)

	if _, err := n.Schedule(context.Background(), Notification{Title: TitleBreakOver}); !errors.Is(err, boom) {
		t.Errorf("Schedule() error = %v, want wrapped publish error", err)
	}
	if err := n.CancelAll(context.Background()); !errors.Is(err, boom) {
		t.Errorf("CancelAll() error = %v, want wrapped publish error", err)
	}
}

func TestLogNotifier_AssignsID(t *testing.T) {
	id, err := NewLogNotifier().Schedule(context.Background(), Notification{Title: TitleFocusComplete})
	if err != nil || id == "" {
		t.Errorf("Schedule() = %q, %v", id, err)
	}
}
