// Package druginfo looks up drug label information on openFDA.
package druginfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

// ErrNoMatch is returned when no search strategy finds a label.
var ErrNoMatch = errors.New("no drug label found")

// strategies are tried in order; the first one returning a label wins.
var strategies = []string{
	`openfda.brand_name:"%s"`,
	`openfda.generic_name:"%s"`,
	`openfda.substance_name:"%s"`,
	`%s`,
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		now:        time.Now,
	}
}

type label struct {
	ID      string `json:"id"`
	OpenFDA struct {
		BrandName        []string `json:"brand_name"`
		GenericName      []string `json:"generic_name"`
		ManufacturerName []string `json:"manufacturer_name"`
		SubstanceName    []string `json:"substance_name"`
	} `json:"openfda"`
	Description      []string `json:"description"`
	Purpose          []string `json:"purpose"`
	ActiveIngredient []string `json:"active_ingredient"`
	Indications      []string `json:"indications_and_usage"`
	AdverseReactions []string `json:"adverse_reactions"`
	Dosage           []string `json:"dosage_and_administration"`
	Warnings         []string `json:"warnings"`
	BoxedWarning     []string `json:"boxed_warning"`
}

// Search returns the best label for a free-text medicine name.
func (c *Client) Search(ctx context.Context, name string) (*models.Medicine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNoMatch
	}
	term := strings.ReplaceAll(name, `"`, "")

	var lastErr error
	for _, strategy := range strategies {
		l, err := c.fetch(ctx, fmt.Sprintf(strategy, term))
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("drug lookup for %q: %w", name, ctx.Err())
			}
			c.log.WithError(err).WithField("query", strategy).Debug("drug lookup strategy failed")
			lastErr = err
			continue
		}
		if l != nil {
			return c.toMedicine(name, l), nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("drug lookup for %q: %w", name, lastErr)
	}
	return nil, ErrNoMatch
}

// fetch returns nil without error when the query matches nothing.
func (c *Client) fetch(ctx context.Context, search string) (*label, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", "1")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/drug/label.json?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openFDA returned status %d", resp.StatusCode)
	}

	var result struct {
		Results []label `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode openFDA response: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, nil
	}
	return &result.Results[0], nil
}

func (c *Client) toMedicine(query string, l *label) *models.Medicine {
	m := &models.Medicine{
		ID:               l.ID,
		Name:             first(l.OpenFDA.BrandName),
		GenericName:      first(l.OpenFDA.GenericName),
		Manufacturer:     first(l.OpenFDA.ManufacturerName),
		Description:      join(l.Description),
		Ingredients:      ingredients(l),
		Indications:      join(l.Indications),
		AdverseReactions: join(l.AdverseReactions),
		Dosage:           join(l.Dosage),
		Warnings:         join(append(append([]string{}, l.BoxedWarning...), l.Warnings...)),
		Timestamp:        c.now(),
	}
	if m.Name == "" {
		m.Name = query
	}
	if m.Description == "" {
		m.Description = join(l.Purpose)
	}
	if m.ID == "" {
		m.ID = strings.ToLower(m.Name)
	}
	return m
}

func ingredients(l *label) []string {
	if len(l.OpenFDA.SubstanceName) > 0 {
		return append([]string{}, l.OpenFDA.SubstanceName...)
	}
	out := []string{}
	for _, s := range l.ActiveIngredient {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func join(values []string) string {
	return strings.TrimSpace(strings.Join(values, "\n\n"))
}
