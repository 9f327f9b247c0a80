package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebies_claimer/internal/model"
)

func sampleSummary() model.RunSummary {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return model.RunSummary{
		RunID:      "run-1",
		Pass:       2,
		StartedAt:  at,
		FinishedAt: at.Add(time.Minute),
		Accounts:   1,
		Claims: []model.ClaimRecord{
			{Email: "a@example.com", Title: "Hades", Status: model.ClaimStatusClaimed, OrderID: "ord-1", At: at},
			{Email: "a@example.com", Title: "Celeste", Status: model.ClaimStatusFailed, Error: "region <locked>", At: at},
		},
	}
}

func TestSMTPConfigForEmail(t *testing.T) {
	host, port, ssl, err := smtpConfigForEmail("me@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", host)
	assert.Equal(t, 587, port)
	assert.False(t, ssl)

	host, port, ssl, err = smtpConfigForEmail("me@example.org")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org", host)
	assert.Equal(t, 465, port)
	assert.True(t, ssl)

	_, _, _, err = smtpConfigForEmail("nope")
	assert.Error(t, err)
}

func TestValidateEmailSettings(t *testing.T) {
	assert.Error(t, validateEmailSettings(model.EmailSettings{}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "a@example.com"}))
	assert.Error(t, validateEmailSettings(model.EmailSettings{Email: "a@example.com", AuthCode: "x", To: "bad"}))
	assert.NoError(t, validateEmailSettings(model.EmailSettings{Email: "a@example.com", AuthCode: "x", To: "b@example.com"}))
}

func TestBuildSummaryEmail(t *testing.T) {
	s := sampleSummary()
	assert.Equal(t, "Free promotions: 1 claimed (pass 2)", buildSummarySubject(s))

	htmlBody, textBody, err := buildSummaryEmailBody(s)
	require.NoError(t, err)
	assert.Contains(t, textBody, "1 claimed out of 2 offers")
	assert.Contains(t, textBody, "Hades | a@example.com | claimed | ord-1")
	assert.Contains(t, htmlBody, "region &lt;locked&gt;")

	_, _, err = buildSummaryEmailBody(model.RunSummary{})
	assert.Error(t, err)
}

func TestEmailNotifier_SendsQueuedSummaries(t *testing.T) {
	var (
		mu       sync.Mutex
		subjects []string
		to       []string
	)
	send := func(_ context.Context, s model.EmailSettings, subject, _, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		subjects = append(subjects, subject)
		to = append(to, recipient(s))
		return nil
	}
	n := newEmailNotifier(model.EmailSettings{Enabled: true, Email: "a@example.com", AuthCode: "x", To: "b@example.com"}, nil, send)

	n.NotifyRunSummary(context.Background(), model.RunSummary{RunID: "empty"})
	n.NotifyRunSummary(context.Background(), sampleSummary())
	require.NoError(t, n.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Free promotions: 1 claimed (pass 2)"}, subjects)
	assert.Equal(t, []string{"b@example.com"}, to)
}

func TestEmailNotifier_Disabled(t *testing.T) {
	called := false
	n := newEmailNotifier(model.EmailSettings{Enabled: false}, nil, func(context.Context, model.EmailSettings, string, string, string) error {
		called = true
		return errors.New("should not send")
	})
	n.NotifyRunSummary(context.Background(), sampleSummary())
	require.NoError(t, n.Close(context.Background()))
	assert.False(t, called)
}
