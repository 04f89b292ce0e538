package daraja

import (
	"encoding/base64"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Password is the STK password: base64 of shortcode, passkey and timestamp.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// NormalizePhone converts local numbers to the 254XXXXXXXXX form the API expects.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), "+", "")
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}
	return phone
}
