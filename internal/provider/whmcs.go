package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WHMCSClient implements InvoiceProvider against the billing system's
// HTTP API. A 409 response means the decision id was already applied and
// counts as success; 4xx responses are permanent failures, everything
// else is retried per the policy.
type WHMCSClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	retry   RetryPolicy
	log     *logrus.Logger
}

func NewWHMCSClient(baseURL, apiKey string, timeout time.Duration, retry RetryPolicy, log *logrus.Logger) *WHMCSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WHMCSClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		log:     log,
	}
}

func (c *WHMCSClient) ApplyPayment(ctx context.Context, req PaymentRequest) error {
	return c.post(ctx, fmt.Sprintf("/api/invoices/%s/payments", req.InvoiceID), req)
}

func (c *WHMCSClient) ReversePayment(ctx context.Context, req PaymentRequest) error {
	return c.post(ctx, fmt.Sprintf("/api/invoices/%s/payments/reverse", req.InvoiceID), req)
}

func (c *WHMCSClient) post(ctx context.Context, path string, payload PaymentRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return c.retry.Do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			c.log.WithError(err).WithField("path", path).Warn("invoice provider unreachable")
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusConflict:
			// Decision id already applied upstream.
			c.log.WithFields(logrus.Fields{
				"path":        path,
				"decision_id": payload.DecisionID,
			}).Info("write-back replayed, provider already applied it")
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return Permanent(fmt.Errorf("provider rejected %s: status %d", path, resp.StatusCode))
		default:
			c.log.WithFields(logrus.Fields{
				"path":   path,
				"status": resp.StatusCode,
			}).Warn("invoice provider error, will retry")
			return fmt.Errorf("provider %s: status %d", path, resp.StatusCode)
		}
	})
}
