package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingAPIKey = errors.New("AI service is not configured: missing GOOGLE_API_KEY")
	ErrEmptyAnswer   = errors.New("empty answer from Gemini")
)

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	log        logrus.FieldLogger
}

func NewClient(apiKey, model, baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func buildPrompt(medicine, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		question = "What is it used for, how is it usually taken, and what are the main side effects and warnings?"
	}
	return fmt.Sprintf(`You are a pharmacist answering a patient's question about a medicine.

MEDICINE: %s
QUESTION: %s

Answer in plain language in at most 200 words. Do not give a diagnosis. End by recommending the patient confirm with a doctor or pharmacist.`, medicine, question)
}

// AskAboutMedicine returns a plain-language answer about medicine. An empty question asks
// for a general overview.
func (c *Client) AskAboutMedicine(ctx context.Context, medicine, question string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(medicine) == "" {
		return "", fmt.Errorf("medicine name is required")
	}

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": buildPrompt(medicine, question)},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.3,
			"maxOutputTokens": 1024,
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode Gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("failed to build Gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("Gemini API returned status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode Gemini response: %w", err)
	}

	if len(result.Candidates) == 0 {
		return "", ErrEmptyAnswer
	}
	var parts []string
	for _, p := range result.Candidates[0].Content.Parts {
		if text := strings.TrimSpace(p.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyAnswer
	}

	c.log.WithField("medicine", medicine).Debug("🤖 Gemini answered")
	return strings.Join(parts, "\n"), nil
}
