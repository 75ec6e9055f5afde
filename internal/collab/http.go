package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds the base URLs of the collaborator services.
type Config struct {
	ScraperURL   string
	GeneratorURL string
	DeliveryURL  string
	APIKey       string
	Timeout      time.Duration
}

// serviceEnvelope is the JSON envelope the collaborator services answer with.
type serviceEnvelope struct {
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Obj    json.RawMessage `json:"obj"`
}

func newRestyClient(baseURL, apiKey string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		r.SetHeader("Token", apiKey)
	}
	return r
}

// decode unwraps the service envelope into out. A 422 is the collaborator's
// "nothing to work with" answer and maps to ErrNoContent; any other non-2xx
// or malformed body is a hard failure.
func decode(resp *resty.Response, out interface{}) error {
	if resp.StatusCode() == http.StatusUnprocessableEntity {
		return ErrNoContent
	}
	if resp.IsError() {
		return fmt.Errorf("collaborator returned %d: %s", resp.StatusCode(), resp.String())
	}
	var env serviceEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("malformed collaborator response: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("collaborator error: %s", env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			return fmt.Errorf("malformed collaborator payload: %w", err)
		}
	}
	return nil
}

// HTTPScraper calls the content-scraper service.
type HTTPScraper struct {
	r *resty.Client
}

func NewHTTPScraper(cfg Config) *HTTPScraper {
	return &HTTPScraper{r: newRestyClient(cfg.ScraperURL, cfg.APIKey, cfg.Timeout)}
}

func (s *HTTPScraper) Scrape(ctx context.Context, workspaceID string) (*ScrapeResult, error) {
	resp, err := s.r.R().
		SetContext(ctx).
		SetBody(map[string]string{"workspace_id": workspaceID}).
		Post("/v1/scrape")
	if err != nil {
		return nil, fmt.Errorf("scrape request: %w", err)
	}
	var result ScrapeResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HTTPGenerator calls the newsletter-generation service.
type HTTPGenerator struct {
	r *resty.Client
}

func NewHTTPGenerator(cfg Config) *HTTPGenerator {
	return &HTTPGenerator{r: newRestyClient(cfg.GeneratorURL, cfg.APIKey, cfg.Timeout)}
}

func (g *HTTPGenerator) Generate(ctx context.Context, workspaceID string, settings GenerateSettings) (*GenerateResult, error) {
	resp, err := g.r.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"workspace_id": workspaceID,
			"settings":     settings,
		}).
		Post("/v1/newsletters/generate")
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	var result GenerateResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HTTPSender calls the delivery service.
type HTTPSender struct {
	r *resty.Client
}

func NewHTTPSender(cfg Config) *HTTPSender {
	return &HTTPSender{r: newRestyClient(cfg.DeliveryURL, cfg.APIKey, cfg.Timeout)}
}

func (s *HTTPSender) Send(ctx context.Context, newsletterID, workspaceID string, testMode bool) (*SendResult, error) {
	resp, err := s.r.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"newsletter_id": newsletterID,
			"workspace_id":  workspaceID,
			"test_mode":     testMode,
		}).
		Post("/v1/newsletters/send")
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	var result SendResult
	if err := decode(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
