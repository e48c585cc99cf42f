package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skylinefoods/stocktx/internal/models"
	"github.com/skylinefoods/stocktx/pkg/checksum"
)

const (
	authTimeout   = 30 * time.Second
	reportTimeout = 90 * time.Second
	logoutTimeout = 10 * time.Second
)

// Report fields of the transactions OLAP report. The server returns rows
// keyed by these identifiers.
var transactionsGroupBy = []string{
	"DateTime.DateTyped",
	"Product.Num",
	"Product.Name",
	"Department",
	"Product.Type",
	"Product.MeasureUnit",
	"Document",
	"TransactionType",
}

type ClientConfig struct {
	BaseURL      string
	Login        string
	Password     string
	Departments  []string
	ProductCodes []string
}

// Client talks to the POS server reporting API. One FetchTransactions call is
// one full session: authenticate, pull the report, log out.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *logrus.Logger
}

func NewClient(cfg ClientConfig, log *logrus.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{},
		log:  log,
	}
}

// FetchTransactions returns the raw report rows for the period together with
// the payload checksum. The period's upper bound is exclusive.
func (c *Client) FetchTransactions(ctx context.Context, from, to time.Time) ([]models.ReportRow, string, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, "", err
	}
	defer c.Logout(token)

	return c.fetchReport(ctx, token, from, to)
}

// Authenticate obtains a session token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", &models.FetchError{Stage: "auth", Err: fmt.Errorf("POS_BASE_URL is not set")}
	}
	if c.cfg.Login == "" || c.cfg.Password == "" {
		return "", &models.FetchError{Stage: "auth", Err: fmt.Errorf("POS_LOGIN / POS_PASSWORD is not set")}
	}

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	params := url.Values{"login": {c.cfg.Login}, "pass": {c.cfg.Password}}
	endpoint := fmt.Sprintf("%s/api/auth?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &models.FetchError{Stage: "auth", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &models.FetchError{Stage: "auth", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.FetchError{Stage: "auth", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &models.FetchError{Stage: "auth", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &models.FetchError{Stage: "auth", Err: fmt.Errorf("empty token in response")}
	}

	c.log.Infof("POS session token obtained: %s...", token[:min(6, len(token))])
	return token, nil
}

// Logout releases the session license slot. Failures are only logged: the
// session expires server-side anyway.
func (c *Client) Logout(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()

	params := url.Values{"key": {token}}
	endpoint := fmt.Sprintf("%s/api/logout?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		c.log.Warnf("Failed to build logout request: %v", err)
		return
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnf("POS logout failed: %v", err)
		return
	}
	resp.Body.Close()

	c.log.Debug("POS session closed")
}

type dateRangeFilter struct {
	FilterType  string `json:"filterType"`
	PeriodType  string `json:"periodType"`
	From        string `json:"from"`
	To          string `json:"to"`
	IncludeLow  bool   `json:"includeLow"`
	IncludeHigh bool   `json:"includeHigh"`
}

type includeValuesFilter struct {
	FilterType string   `json:"filterType"`
	Values     []string `json:"values"`
}

type olapRequest struct {
	ReportType       string         `json:"reportType"`
	GroupByRowFields []string       `json:"groupByRowFields"`
	AggregateFields  []string       `json:"aggregateFields"`
	Filters          map[string]any `json:"filters"`
}

type olapResponse struct {
	Data []models.ReportRow `json:"data"`
}

func (c *Client) fetchReport(ctx context.Context, token string, from, to time.Time) ([]models.ReportRow, string, error) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	filters := map[string]any{
		"DateTime.OperDayFilter": dateRangeFilter{
			FilterType:  "DateRange",
			PeriodType:  "CUSTOM",
			From:        from.Format("2006-01-02"),
			To:          to.Format("2006-01-02"),
			IncludeLow:  true,
			IncludeHigh: false,
		},
	}
	if len(c.cfg.Departments) > 0 {
		filters["Department"] = includeValuesFilter{FilterType: "IncludeValues", Values: c.cfg.Departments}
	}
	if len(c.cfg.ProductCodes) > 0 {
		filters["Product.Num"] = includeValuesFilter{FilterType: "IncludeValues", Values: c.cfg.ProductCodes}
	}

	payload, err := json.Marshal(olapRequest{
		ReportType:       "TRANSACTIONS",
		GroupByRowFields: transactionsGroupBy,
		AggregateFields:  []string{"Amount.StoreInOutTyped"},
		Filters:          filters,
	})
	if err != nil {
		return nil, "", &models.FetchError{Stage: "report", Err: err}
	}

	params := url.Values{"key": {token}}
	endpoint := fmt.Sprintf("%s/api/v2/reports/olap?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &models.FetchError{Stage: "report", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &models.FetchError{Stage: "report", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &models.FetchError{Stage: "report", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &models.FetchError{Stage: "report", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var report olapResponse
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, "", &models.FetchError{Stage: "report", Err: fmt.Errorf("malformed report response: %w", err)}
	}

	c.log.Infof("Fetched %d report rows", len(report.Data))
	return report.Data, checksum.Payload(body), nil
}
