package notification

import (
	"errors"
	"testing"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestNewMail_ConfiguresSender(t *testing.T) {
	mail := NewMail(MailParams{
		SMTPServerAddress: "smtp.example.com",
		SMTPServerPort:    587,
		From:              "bot@example.com",
		To:                "operator@example.com",
		Password:          "secret",
	})

	require.Equal(t, "bot@example.com", mail.from)
	require.Equal(t, "operator@example.com", mail.to)
	require.Equal(t, "smtp.example.com", mail.smtpServerAddress)
	require.Equal(t, 587, mail.smtpServerPort)
	require.NotNil(t, mail.auth)
}

func TestPositionMessage_OpenAndClose(t *testing.T) {
	pos := core.Position{
		Symbol:      "BTCUSDT",
		Side:        core.SideTypeBuy,
		EntryPrices: []float64{100},
		Quantity:    1.5,
		Leverage:    5,
		IsActive:    true,
	}

	opened := positionMessage(pos)
	require.Contains(t, opened, "POSITION OPENED")
	require.Contains(t, opened, "BTCUSDT")
	require.Contains(t, opened, "x5")

	pos.IsActive = false
	pos.ExitReason = "Take profit hit"
	closed := positionMessage(pos)
	require.Contains(t, closed, "POSITION CLOSED")
	require.Contains(t, closed, "Take profit hit")
}

func TestErrorMessage(t *testing.T) {
	msg := errorMessage(errors.New("margin insufficient"))
	require.Contains(t, msg, "ERROR")
	require.Contains(t, msg, "margin insufficient")
}
