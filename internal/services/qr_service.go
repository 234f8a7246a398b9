package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/liquidgold/wallet/internal/config"
	"github.com/skip2/go-qrcode"
)

// QRService issues short-lived receive-money codes. A code carries the
// recipient's wallet number and an optional requested amount; scanning it
// prefills a normal transfer, which then goes through the full ledger path.
type QRService struct {
	redis *redis.Client
	cfg   *config.WalletConfig
}

func NewQRService(redisClient *redis.Client, cfg *config.WalletConfig) *QRService {
	return &QRService{redis: redisClient, cfg: cfg}
}

// ReceiveCode is the payload behind a receive-money QR.
type ReceiveCode struct {
	WalletNumber string `json:"wallet_number"`
	Username     string `json:"username"`
	Amount       int64  `json:"amount,omitempty"` // paise, 0 means payer's choice
	Timestamp    int64  `json:"timestamp"`
	Nonce        string `json:"nonce"`
}

// Generate builds a receive code and its PNG rendering. The code is cached
// with a TTL; resolving an expired or unknown code fails.
func (s *QRService) Generate(ctx context.Context, walletNumber, username string, amount int64) (string, string, error) {
	payload := ReceiveCode{
		WalletNumber: walletNumber,
		Username:     username,
		Amount:       amount,
		Timestamp:    time.Now().Unix(),
		Nonce:        generateNonce(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", err
	}
	code := base64.URLEncoding.EncodeToString(data)

	if s.redis != nil {
		key := fmt.Sprintf("qr:%s", code)
		if err := s.redis.Set(ctx, key, data, s.cfg.QRCodeTTL).Err(); err != nil {
			return "", "", err
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	return code, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Resolve looks up a scanned code. Codes are single-use: resolving one
// deletes it.
func (s *QRService) Resolve(ctx context.Context, code string) (*ReceiveCode, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("qr resolution unavailable")
	}

	key := fmt.Sprintf("qr:%s", code)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, walletErr(KindNotFound, "invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var payload ReceiveCode
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)
	return &payload, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
