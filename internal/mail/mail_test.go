package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitationMessage(t *testing.T) {
	id := uuid.New()
	msg, err := InvitationMessage(Invitation{
		To:        "guest@example.com",
		Inviter:   "Ada Lovelace",
		SpaceID:   id,
		SpaceName: "R&D <team>",
		AppURL:    "https://app.example.com/",
		ExpiresIn: "1h0m0s",
	})
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", msg.To)
	assert.Equal(t, "Ada Lovelace invited you to join R&D <team>", msg.Subject)
	assert.Contains(t, msg.HTML, "R&amp;D &lt;team&gt;")
	assert.Contains(t, msg.HTML, `href="https://app.example.com/collabs/`+id.String()+`/join"`)
	assert.Contains(t, msg.HTML, "expires in 1h0m0s")
}

func TestInvitationMessageWithoutInviter(t *testing.T) {
	msg, err := InvitationMessage(Invitation{To: "a@b.c", SpaceName: "Lab"})
	require.NoError(t, err)
	assert.Equal(t, "You're invited to join Lab", msg.Subject)
	assert.Contains(t, msg.HTML, "You have been invited")
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Pass: "p", From: "noreply@example.com", FromName: "Collabs"})
	var gotAddr string
	var gotTo []string
	var gotBody string
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotBody = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "noreply@example.com", from)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Message{To: "x@example.com", Subject: "Hi", HTML: "<p>hi</p>"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"x@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotBody, "From: Collabs <noreply@example.com>\r\n"))
	assert.Contains(t, gotBody, "Subject: Hi\r\n")
	assert.True(t, strings.HasSuffix(gotBody, "\r\n\r\n<p>hi</p>"))

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.ErrorContains(t, s.Send(context.Background(), Message{To: "x@example.com"}), "refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "x@example.com"}), context.Canceled)
}
