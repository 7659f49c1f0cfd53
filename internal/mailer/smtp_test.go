package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMTP struct {
	mu       sync.Mutex
	attempts int
	failures []error
	to       []string
	msg      string
}

func (f *fakeSMTP) send(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	f.to = to
	f.msg = string(msg)
	return nil
}

func testConfig() Config {
	return Config{Addr: "localhost:2525", From: "noreply@example.com", MaxAttempts: 3, RetryDelay: time.Millisecond}
}

func TestSMTPNotifier_RendersMessage(t *testing.T) {
	t.Parallel()
	fake := &fakeSMTP{}
	n := NewSMTPNotifierWithSender(testConfig(), fake.send)

	recipient := &models.Member{ID: "m1", DisplayName: "Alex", PrimaryEmail: "alex@example.com"}
	note := &models.Notification{ID: "n1", Event: &models.Event{ActionType: "follow"}}
	require.NoError(t, n.Notify(context.Background(), recipient, note, "Sam started following you."))

	assert.Equal(t, 1, fake.attempts)
	assert.Equal(t, []string{"alex@example.com"}, fake.to)
	assert.Contains(t, fake.msg, "To: alex@example.com\r\n")
	assert.Contains(t, fake.msg, "Subject: New follow activity\r\n")
	assert.Contains(t, fake.msg, "Hi Alex,")
	assert.Contains(t, fake.msg, "Sam started following you.")
}

func TestSMTPNotifier_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	fake := &fakeSMTP{failures: []error{errors.New("421 service not available")}}
	n := NewSMTPNotifierWithSender(testConfig(), fake.send)

	err := n.Notify(context.Background(), &models.Member{PrimaryEmail: "a@example.com"}, &models.Notification{ID: "n1"}, "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.attempts)
}

func TestSMTPNotifier_PermanentFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	fake := &fakeSMTP{failures: []error{errors.New("550 mailbox unavailable")}}
	n := NewSMTPNotifierWithSender(testConfig(), fake.send)

	err := n.Notify(context.Background(), &models.Member{PrimaryEmail: "a@example.com"}, &models.Notification{ID: "n1"}, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, fake.attempts)
}

func TestSMTPNotifier_RequiresAddress(t *testing.T) {
	t.Parallel()
	fake := &fakeSMTP{}
	n := NewSMTPNotifierWithSender(testConfig(), fake.send)

	err := n.Notify(context.Background(), &models.Member{ID: "m1"}, &models.Notification{ID: "n1"}, "hi")
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Zero(t, fake.attempts)
}
