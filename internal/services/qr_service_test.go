package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestQRService_Generate(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	cfg := testWalletConfig()
	cfg.QRCodeTTL = 5 * time.Minute
	service := NewQRService(redisClient, cfg)

	redisMock.Regexp().ExpectSet(`qr:.*`, `.*`, 5*time.Minute).SetVal("OK")

	code, image, err := service.Generate(context.Background(), "LG000001ABCDEF", "asha", 150_000)
	assert.NoError(t, err)
	assert.NotEmpty(t, image)
	assert.NoError(t, redisMock.ExpectationsWereMet())

	// The code itself is a self-describing payload.
	data, err := base64.URLEncoding.DecodeString(code)
	assert.NoError(t, err)

	var payload ReceiveCode
	assert.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "LG000001ABCDEF", payload.WalletNumber)
	assert.Equal(t, int64(150_000), payload.Amount)
	assert.NotEmpty(t, payload.Nonce)
}

func TestQRService_Resolve(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	cfg := testWalletConfig()
	cfg.QRCodeTTL = 5 * time.Minute
	service := NewQRService(redisClient, cfg)

	payload := ReceiveCode{WalletNumber: "LG000001ABCDEF", Username: "asha", Amount: 20_000, Nonce: "n"}
	data, _ := json.Marshal(payload)
	code := base64.URLEncoding.EncodeToString(data)

	t.Run("resolves and burns the code", func(t *testing.T) {
		redisMock.ExpectGet("qr:" + code).SetVal(string(data))
		redisMock.ExpectDel("qr:" + code).SetVal(1)

		resolved, err := service.Resolve(context.Background(), code)
		assert.NoError(t, err)
		assert.Equal(t, "LG000001ABCDEF", resolved.WalletNumber)
		assert.Equal(t, int64(20_000), resolved.Amount)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("expired code is not found", func(t *testing.T) {
		redisMock.ExpectGet("qr:stale").RedisNil()

		_, err := service.Resolve(context.Background(), "stale")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
