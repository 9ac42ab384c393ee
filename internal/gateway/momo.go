package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	Timeout     time.Duration
}

// MoMoClient creates captureWallet payment requests.
type MoMoClient struct {
	cfg  MoMoConfig
	http *http.Client
	log  *logrus.Logger
}

func NewMoMoClient(cfg MoMoConfig, log *logrus.Logger) *MoMoClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MoMoClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

type momoRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      string `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

func (c *MoMoClient) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body := momoRequest{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   uuid.NewString(),
		Amount:      strconv.FormatInt(req.Amount, 10),
		OrderID:     req.OrderID,
		OrderInfo:   req.Info,
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		RequestType: "captureWallet",
		Lang:        "vi",
	}
	body.Signature = c.sign(body)

	raw, err := json.Marshal(body)
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("momo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return ChargeResult{}, fmt.Errorf("momo responded %d", resp.StatusCode)
	}

	var res ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return ChargeResult{}, fmt.Errorf("decode momo response: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"order_id":    req.OrderID,
		"amount":      req.Amount,
		"result_code": res.ResultCode,
	}).Info("momo charge requested")
	return res, nil
}

// sign builds the HMAC-SHA256 signature over the alphabetically ordered fields.
func (c *MoMoClient) sign(r momoRequest) string {
	raw := "accessKey=" + r.AccessKey +
		"&amount=" + r.Amount +
		"&extraData=" + r.ExtraData +
		"&ipnUrl=" + r.IPNURL +
		"&orderId=" + r.OrderID +
		"&orderInfo=" + r.OrderInfo +
		"&partnerCode=" + r.PartnerCode +
		"&redirectUrl=" + r.RedirectURL +
		"&requestId=" + r.RequestID +
		"&requestType=" + r.RequestType
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
