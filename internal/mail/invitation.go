package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"
)

var invitationTmpl = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hi,</p>
  <p>{{if .Inviter}}{{.Inviter}} has invited you{{else}}You have been invited{{end}} to join the collab <strong>{{.Space}}</strong>.</p>
  <p><a href="{{.Link}}">Join the collab</a></p>
  <p style="color: #666;">This invitation expires in {{.ExpiresIn}}.</p>
</body>
</html>
`))

// Invitation holds the fields of an invitation email.
type Invitation struct {
	To        string
	Inviter   string
	SpaceID   uuid.UUID
	SpaceName string
	AppURL    string
	ExpiresIn string
}

// InvitationMessage renders the invitation email.
func InvitationMessage(inv Invitation) (Message, error) {
	subject := fmt.Sprintf("You're invited to join %s", inv.SpaceName)
	if inv.Inviter != "" {
		subject = fmt.Sprintf("%s invited you to join %s", inv.Inviter, inv.SpaceName)
	}
	var body bytes.Buffer
	err := invitationTmpl.Execute(&body, map[string]string{
		"Inviter":   inv.Inviter,
		"Space":     inv.SpaceName,
		"Link":      strings.TrimRight(inv.AppURL, "/") + "/collabs/" + inv.SpaceID.String() + "/join",
		"ExpiresIn": inv.ExpiresIn,
	})
	if err != nil {
		return Message{}, fmt.Errorf("render invitation: %w", err)
	}
	return Message{To: inv.To, Subject: subject, HTML: body.String()}, nil
}
