package qr

import "github.com/skip2/go-qrcode"

// Encode renders a ticket token as a PNG suitable for wallet passes and
// e-mail attachments. The token is already signed, so the QR carries it
// verbatim.
func Encode(token string) ([]byte, error) {
	return qrcode.Encode(token, qrcode.Medium, 256)
}
