package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/trektally/backend/internal/config"
	"github.com/trektally/backend/internal/models"
	"github.com/trektally/backend/internal/split"
)

// QRService builds UPI payment links and QR images for settling a share.
// Generated links carry a nonce parked in Redis so the companion app can
// match a completed payment back to its share.
type QRService struct {
	db      *sql.DB
	redis   *redis.Client
	linkTTL time.Duration
}

func NewQRService(db *sql.DB, redisClient *redis.Client, cfg *config.AppConfig) *QRService {
	return &QRService{
		db:      db,
		redis:   redisClient,
		linkTTL: cfg.PaymentLinkTTL,
	}
}

// PaymentQR is the generated payment artifact for one share.
type PaymentQR struct {
	Link    string  `json:"link"`
	QRImage string  `json:"qrImage"`
	Amount  float64 `json:"amount"`
	Payee   string  `json:"payee"`
}

// GeneratePaymentQR builds a UPI deep link and QR image for the given share.
// Only the share's debtor may request it, and only while the share is still
// settleable.
func (s *QRService) GeneratePaymentQR(ctx context.Context, shareID, callerID string) (*PaymentQR, error) {
	var (
		debtorID    string
		amount      float64
		status      models.ShareStatus
		description string
		payeeName   string
		payeeUPI    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.user_id, s.amount, s.status, e.description, u.name, u.upi_id
		FROM expense_shares s
		JOIN expenses e ON e.id = s.expense_id
		JOIN users u ON u.id = e.creator_id
		WHERE s.id = $1`, shareID).
		Scan(&debtorID, &amount, &status, &description, &payeeName, &payeeUPI)
	if err == sql.ErrNoRows {
		return nil, models.NewError(models.KindNotFound, "Share not found")
	}
	if err != nil {
		return nil, models.WrapError(models.KindStore, "share lookup failed", err)
	}

	if debtorID != callerID {
		return nil, models.NewError(models.KindPermissionDenied, "Only the debtor can request a payment link")
	}
	if split.IsTerminal(status) {
		return nil, models.NewError(models.KindConflict, "Share is already settled")
	}
	if payeeUPI == "" {
		return nil, models.NewError(models.KindValidation, "Expense creator has no UPI handle")
	}

	nonce := s.generateNonce()
	params := url.Values{}
	params.Set("pa", payeeUPI)
	params.Set("pn", payeeName)
	params.Set("am", fmt.Sprintf("%.2f", amount))
	params.Set("cu", "INR")
	params.Set("tn", description)
	params.Set("tr", nonce)
	link := "upi://pay?" + params.Encode()

	if s.redis != nil {
		payload, err := json.Marshal(map[string]any{
			"shareId": shareID,
			"userId":  callerID,
			"amount":  amount,
		})
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("payqr:%s", nonce)
		if err := s.redis.Set(ctx, key, payload, s.linkTTL).Err(); err != nil {
			return nil, models.WrapError(models.KindStore, "payment link store failed", err)
		}
	}

	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr encode failed: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("qr image failed: %w", err)
	}

	return &PaymentQR{
		Link:    link,
		QRImage: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Amount:  amount,
		Payee:   payeeName,
	}, nil
}

// ResolvePaymentNonce looks up and consumes the share reference behind a
// payment nonce. Used by the companion app after a UPI callback.
func (s *QRService) ResolvePaymentNonce(ctx context.Context, nonce string) (map[string]any, error) {
	if s.redis == nil {
		return nil, models.NewError(models.KindNotFound, "Payment link expired or unknown")
	}

	key := fmt.Sprintf("payqr:%s", nonce)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, models.NewError(models.KindNotFound, "Payment link expired or unknown")
	}
	if err != nil {
		return nil, models.WrapError(models.KindStore, "payment link lookup failed", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return result, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
