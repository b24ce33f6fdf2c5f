package notification

import (
	"fmt"
	"net/smtp"

	"github.com/raykavin/regimerun/pkg/core"
	log "github.com/sirupsen/logrus"
)

// Mail handles email notifications for the application
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// Notify sends an email notification with the given text
func (m Mail) Notify(text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	message := fmt.Sprintf(
		`To: "User" <%s>
From: "RegimeRun" <%s>
%s`,
		m.to,
		m.from,
		text,
	)

	err := smtp.SendMail(
		serverAddress,
		m.auth,
		m.from,
		[]string{m.to},
		[]byte(message),
	)

	if err != nil {
		log.WithError(err).Error("notification/mail: failed to send email")
	}
}

// OnPosition sends a position lifecycle notification
func (m Mail) OnPosition(pos core.Position) {
	m.Notify(positionMessage(pos))
}

// OnError sends an error notification
func (m Mail) OnError(err error) {
	m.Notify(errorMessage(err))
}

func positionMessage(pos core.Position) string {
	var title string
	if pos.IsActive {
		title = fmt.Sprintf("🟢 POSITION OPENED - %s", pos.Symbol)
	} else {
		title = fmt.Sprintf("🔴 POSITION CLOSED - %s (%s)", pos.Symbol, pos.ExitReason)
	}

	return fmt.Sprintf("Subject: %s\n%s %s x%d, entry %.4f, qty %.6f",
		title, pos.Symbol, pos.Side, pos.Leverage, pos.AvgEntryPrice(), pos.Quantity)
}

func errorMessage(err error) string {
	return fmt.Sprintf("Subject: 🛑 ERROR\nError %s", err)
}
