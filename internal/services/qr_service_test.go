package services

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/trektally/backend/internal/models"
)

func TestQRService_GeneratePaymentQR(t *testing.T) {
	shareQuery := "SELECT s.user_id, s.amount, s.status, e.description, u.name, u.upi_id"
	shareColumns := []string{"user_id", "amount", "status", "description", "name", "upi_id"}

	t.Run("share not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewQRService(db, nil, testAppConfig())

		mock.ExpectQuery(shareQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows(shareColumns))

		_, err = service.GeneratePaymentQR(context.Background(), "sh1", "userB")
		assert.Equal(t, models.KindNotFound, models.KindOf(err))
	})

	t.Run("only the debtor may request a link", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewQRService(db, nil, testAppConfig())

		mock.ExpectQuery(shareQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows(shareColumns).
				AddRow("userB", 450.0, "pending", "Dinner", "Asha Rawat", "asha@upi"))

		_, err = service.GeneratePaymentQR(context.Background(), "sh1", "userC")
		assert.Equal(t, models.KindPermissionDenied, models.KindOf(err))
	})

	t.Run("settled share cannot be paid again", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewQRService(db, nil, testAppConfig())

		mock.ExpectQuery(shareQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows(shareColumns).
				AddRow("userB", 450.0, "paid", "Dinner", "Asha Rawat", "asha@upi"))

		_, err = service.GeneratePaymentQR(context.Background(), "sh1", "userB")
		assert.Equal(t, models.KindConflict, models.KindOf(err))
	})

	t.Run("creator without a UPI handle", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		service := NewQRService(db, nil, testAppConfig())

		mock.ExpectQuery(shareQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows(shareColumns).
				AddRow("userB", 450.0, "pending", "Dinner", "Asha Rawat", ""))

		_, err = service.GeneratePaymentQR(context.Background(), "sh1", "userB")
		assert.Equal(t, models.KindValidation, models.KindOf(err))
	})

	t.Run("builds link, image and parks the nonce", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		redisClient, redisMock := redismock.NewClientMock()
		cfg := testAppConfig()
		service := NewQRService(db, redisClient, cfg)

		mock.ExpectQuery(shareQuery).
			WithArgs("sh1").
			WillReturnRows(sqlmock.NewRows(shareColumns).
				AddRow("userB", 450.0, "pending", "Dinner", "Asha Rawat", "asha@upi"))
		redisMock.Regexp().ExpectSet(`payqr:.+`, `.+`, cfg.PaymentLinkTTL).SetVal("OK")

		payment, err := service.GeneratePaymentQR(context.Background(), "sh1", "userB")
		assert.NoError(t, err)
		assert.Contains(t, payment.Link, "upi://pay?")
		assert.Contains(t, payment.Link, "pa=asha%40upi")
		assert.Contains(t, payment.Link, "am=450.00")
		assert.Contains(t, payment.Link, "cu=INR")
		assert.Equal(t, "Asha Rawat", payment.Payee)
		assert.InDelta(t, 450.0, payment.Amount, 0.001)

		img, err := base64.StdEncoding.DecodeString(payment.QRImage)
		assert.NoError(t, err)
		assert.NotEmpty(t, img)

		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestQRService_ResolvePaymentNonce(t *testing.T) {
	t.Run("unknown nonce", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient, testAppConfig())

		redisMock.ExpectGet("payqr:nonce1").RedisNil()

		_, err := service.ResolvePaymentNonce(context.Background(), "nonce1")
		assert.Equal(t, models.KindNotFound, models.KindOf(err))
	})

	t.Run("resolves and consumes the nonce", func(t *testing.T) {
		redisClient, redisMock := redismock.NewClientMock()
		service := NewQRService(nil, redisClient, testAppConfig())

		redisMock.ExpectGet("payqr:nonce1").SetVal(`{"shareId":"sh1","userId":"userB","amount":450}`)
		redisMock.ExpectDel("payqr:nonce1").SetVal(1)

		result, err := service.ResolvePaymentNonce(context.Background(), "nonce1")
		assert.NoError(t, err)
		assert.Equal(t, "sh1", result["shareId"])
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("no redis means no links", func(t *testing.T) {
		service := NewQRService(nil, nil, testAppConfig())

		_, err := service.ResolvePaymentNonce(context.Background(), "nonce1")
		assert.Equal(t, models.KindNotFound, models.KindOf(err))
	})
}
