package events

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"holclub_bot/deeplink"

	"github.com/skip2/go-qrcode"
)

const qrSize = 512

// NewAttendanceCode: случайный шестизначный код присутствия.
func NewAttendanceCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("генерация кода: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// AttendanceQR: PNG с deep-link на подтверждение присутствия.
func AttendanceQR(botUsername string, eventID int64, code string) ([]byte, error) {
	link := deeplink.BotStartLink(botUsername, deeplink.AttendPayload(eventID, code))
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("QR-код: %w", err)
	}
	return png, nil
}
