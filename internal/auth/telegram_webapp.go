package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultInitDataTTL: максимальный возраст auth_date initData.
const DefaultInitDataTTL = 5 * time.Minute

// WebAppUser is the "user" object of WebApp initData.
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ValidateTelegramWebAppData validates initData from Telegram WebApp.
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
//
// maxAge: максимально допустимый возраст auth_date. Если <= 0, используется DefaultInitDataTTL.
func ValidateTelegramWebAppData(initData string, botToken string, maxAge time.Duration) (url.Values, error) {
	if maxAge <= 0 {
		maxAge = DefaultInitDataTTL
	}

	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("invalid initData format: %w", err)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("hash is missing from initData")
	}

	authDateStr := vals.Get("auth_date")
	if authDateStr == "" {
		return nil, fmt.Errorf("auth_date is missing from initData")
	}
	authDateUnix, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("auth_date is not a valid unix timestamp")
	}
	authDate := time.Unix(authDateUnix, 0)
	if age := time.Since(authDate); age > maxAge {
		return nil, fmt.Errorf("initData expired: auth_date is %s old (max %s)", age.Round(time.Second), maxAge)
	}
	// clock skew макс. 1 мин
	if authDate.After(time.Now().Add(time.Minute)) {
		return nil, fmt.Errorf("auth_date is in the future")
	}

	expected := hex.EncodeToString(signInitData(vals, botToken))
	if !hmac.Equal([]byte(expected), []byte(receivedHash)) {
		return nil, fmt.Errorf("invalid hash: data integrity check failed")
	}

	return vals, nil
}

// ParseWebAppUser validates initData and decodes its user object.
func ParseWebAppUser(initData string, botToken string, maxAge time.Duration) (*WebAppUser, error) {
	vals, err := ValidateTelegramWebAppData(initData, botToken, maxAge)
	if err != nil {
		return nil, err
	}
	raw := vals.Get("user")
	if raw == "" {
		return nil, fmt.Errorf("user is missing from initData")
	}
	var u WebAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("invalid user in initData: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("user id is missing from initData")
	}
	return &u, nil
}

// CheckWebhookSecret compares the X-Telegram-Bot-Api-Secret-Token header
// with the configured secret. An empty secret disables the check.
func CheckWebhookSecret(header, secret string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
}

// signInitData: secret_key = HMAC-SHA256("WebAppData", bot_token),
// hash = HMAC-SHA256(secret_key, data_check_string).
func signInitData(vals url.Values, botToken string) []byte {
	var pairs []string
	for key, values := range vals {
		if key == "hash" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)

	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	return hmacSHA256(secretKey, []byte(strings.Join(pairs, "\n")))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
