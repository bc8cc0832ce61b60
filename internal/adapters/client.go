package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/leadstack/optimizer-engine/internal/models"
	"github.com/leadstack/optimizer-engine/internal/utils"
)

// httpClient is the shared transport for the subsystem adapter clients. Each
// subsystem service exposes a snapshot endpoint (read) and a command endpoint
// (write); both speak POST JSON.
type httpClient struct {
	name         string
	baseURL      string
	snapshotPath string
	commandPath  string
	client       *http.Client
}

func newHTTPClient(name, baseURL, snapshotPath, commandPath string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return httpClient{
		name:         name,
		baseURL:      strings.TrimRight(baseURL, "/"),
		snapshotPath: snapshotPath,
		commandPath:  commandPath,
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Name() string { return c.name }

// Command posts one remediation action to the subsystem's command endpoint.
func (c *httpClient) Command(ctx context.Context, action models.AutomationAction) (models.CommandResult, error) {
	payload := map[string]interface{}{
		"action":     string(action.Type),
		"target":     action.Target,
		"parameters": action.Parameters,
	}

	var result models.CommandResult
	if err := c.postJSON(ctx, c.resolvePath(c.commandPath), payload, &result); err != nil {
		return models.CommandResult{}, utils.NewAppError(c.name+".command", "command dispatch failed", err)
	}
	return result, nil
}

func (c *httpClient) fetchSnapshot(ctx context.Context, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s adapter base URL not configured", c.name)
	}
	payload := map[string]interface{}{
		"component":    c.name,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.postJSON(ctx, c.resolvePath(c.snapshotPath), payload, out); err != nil {
		return utils.NewAppError(c.name+".snapshot", "snapshot request failed", err)
	}
	return nil
}

func (c *httpClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *httpClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", c.name, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// wireTrend and wireAnomaly are the trend/anomaly fields every subsystem
// snapshot carries alongside its typed section.
type wireTrend struct {
	Metric        string  `json:"metric"`
	Direction     string  `json:"direction"`
	ChangePercent float64 `json:"change_percent"`
	Significance  float64 `json:"significance"`
}

type wireAnomaly struct {
	Metric      string    `json:"metric"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

func decodeTrends(component string, in []wireTrend) []models.Trend {
	trends := make([]models.Trend, 0, len(in))
	for _, t := range in {
		trends = append(trends, models.Trend{
			Component:     component,
			Metric:        t.Metric,
			Direction:     models.TrendDirection(t.Direction),
			ChangePercent: t.ChangePercent,
			Significance:  t.Significance,
		})
	}
	return trends
}

func decodeAnomalies(in []wireAnomaly) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0, len(in))
	for _, a := range in {
		anomalies = append(anomalies, models.Anomaly{
			Metric:      a.Metric,
			Severity:    models.Severity(a.Severity),
			Description: a.Description,
			DetectedAt:  a.DetectedAt,
		})
	}
	return anomalies
}
