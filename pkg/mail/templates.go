package mail

import "time"

// PasswordResetSubject is the subject line used for password reset notifications.
const PasswordResetSubject = "RetroQuest Password Reset Request"

// PasswordResetLinkValidity is the lifetime the reset message promises.
const PasswordResetLinkValidity = 10 * time.Minute

// Composer renders RetroQuest notification texts. It only depends on the
// application base URL and is safe to share.
type Composer struct {
	baseURL string
}

func NewComposer(baseURL string) Composer {
	return Composer{baseURL: baseURL}
}

// PasswordResetLink builds the reset link for token. Neither part is escaped.
func (c Composer) PasswordResetLink(token string) string {
	return c.baseURL + "/password/reset?token=" + token
}

// RenderPasswordResetMessage renders the fixed password reset text. Inputs are
// inserted verbatim; empty values produce a malformed but valid string.
func (c Composer) RenderPasswordResetMessage(rc PasswordResetContext) string {
	return "Hey there! \n" +
		"You recently requested to reset your password for your RetroQuest account " +
		rc.TeamName +
		" associated with your email account " +
		rc.Email +
		". No changes have been made to the account yet. \r\n" +
		"Use the link below to reset your password. This link is only valid for the next 10 minutes. \r\n" +
		c.PasswordResetLink(rc.ResetToken) +
		"\r\n" +
		"Thanks, \r\n The RetroQuest Team \r\n"
}
