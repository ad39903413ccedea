package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PlantIDClient calls the Plant.id v3 identification API.
type PlantIDClient struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewPlantIDClient builds a client. The per-request deadline is enforced by
// the orchestrator; the embedded http.Client timeout is a backstop.
func NewPlantIDClient(apiKey, endpoint string, timeout time.Duration) *PlantIDClient {
	return &PlantIDClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout + 5*time.Second},
	}
}

func (c *PlantIDClient) Name() string           { return ProviderPlantID }
func (c *PlantIDClient) Timeout() time.Duration { return c.timeout }

type plantIDRequest struct {
	Images        []string `json:"images"`
	SimilarImages bool     `json:"similar_images"`
	Health        string   `json:"health,omitempty"`
}

type plantIDResponse struct {
	Result struct {
		Classification struct {
			Suggestions []struct {
				Name        string  `json:"name"`
				Probability float64 `json:"probability"`
				Details     struct {
					CommonNames []string `json:"common_names"`
					Taxonomy    struct {
						Family string `json:"family"`
						Genus  string `json:"genus"`
					} `json:"taxonomy"`
					Description struct {
						Value string `json:"value"`
					} `json:"description"`
					URL string `json:"url"`
				} `json:"details"`
			} `json:"suggestions"`
		} `json:"classification"`
		IsHealthy struct {
			Binary      bool    `json:"binary"`
			Probability float64 `json:"probability"`
		} `json:"is_healthy"`
		Disease struct {
			Suggestions []struct {
				Name        string  `json:"name"`
				Probability float64 `json:"probability"`
				Details     struct {
					Description string `json:"description"`
				} `json:"details"`
			} `json:"suggestions"`
		} `json:"disease"`
	} `json:"result"`
}

// Identify submits the image as a base64 data URI and maps the v3 response.
func (c *PlantIDClient) Identify(ctx context.Context, in IdentifyInput) (*Identification, error) {
	payload := plantIDRequest{
		Images:        []string{"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(in.Image)},
		SimilarImages: true,
	}
	if in.IncludeHealth {
		payload.Health = "all"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("plant.id returned %d: %s", resp.StatusCode, string(raw))
	}

	var decoded plantIDResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("plant.id response decode: %w", err)
	}

	out := &Identification{Provider: ProviderPlantID}
	for _, s := range decoded.Result.Classification.Suggestions {
		out.Suggestions = append(out.Suggestions, Suggestion{
			ScientificName: s.Name,
			CommonNames:    s.Details.CommonNames,
			Family:         s.Details.Taxonomy.Family,
			Genus:          s.Details.Taxonomy.Genus,
			Description:    s.Details.Description.Value,
			WikiURL:        s.Details.URL,
			Probability:    s.Probability,
			Source:         ProviderPlantID,
		})
	}

	if in.IncludeHealth {
		health := &HealthAssessment{
			IsHealthy:   decoded.Result.IsHealthy.Binary,
			Probability: decoded.Result.IsHealthy.Probability,
		}
		for _, d := range decoded.Result.Disease.Suggestions {
			health.Diseases = append(health.Diseases, DiseaseSuggestion{
				Name:        d.Name,
				Probability: d.Probability,
				Description: d.Details.Description,
			})
		}
		out.Health = health
	}

	return out, nil
}
