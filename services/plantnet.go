package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// PlantNetClient calls the PlantNet v2 identify API.
type PlantNetClient struct {
	apiKey   string
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewPlantNetClient builds a client for the given project endpoint
// (e.g. .../v2/identify/all).
func NewPlantNetClient(apiKey, endpoint string, timeout time.Duration) *PlantNetClient {
	return &PlantNetClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout + 5*time.Second},
	}
}

func (c *PlantNetClient) Name() string           { return ProviderPlantNet }
func (c *PlantNetClient) Timeout() time.Duration { return c.timeout }

type plantNetResponse struct {
	Results []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificName string   `json:"scientificNameWithoutAuthor"`
			CommonNames    []string `json:"commonNames"`
			Genus          struct {
				ScientificName string `json:"scientificNameWithoutAuthor"`
			} `json:"genus"`
			Family struct {
				ScientificName string `json:"scientificNameWithoutAuthor"`
			} `json:"family"`
		} `json:"species"`
	} `json:"results"`
}

// Identify submits the image as multipart form data. PlantNet has no health
// assessment; Health is always nil.
func (c *PlantNetClient) Identify(ctx context.Context, in IdentifyInput) (*Identification, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("images", "image.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(in.Image); err != nil {
		return nil, err
	}
	organs := in.Organs
	if len(organs) == 0 {
		organs = []string{"auto"}
	}
	for _, organ := range organs {
		if err := mw.WriteField("organs", organ); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := c.endpoint + "?api-key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("plantnet returned %d: %s", resp.StatusCode, string(raw))
	}

	var decoded plantNetResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("plantnet response decode: %w", err)
	}

	out := &Identification{Provider: ProviderPlantNet}
	for _, r := range decoded.Results {
		out.Suggestions = append(out.Suggestions, Suggestion{
			ScientificName: r.Species.ScientificName,
			CommonNames:    r.Species.CommonNames,
			Family:         r.Species.Family.ScientificName,
			Genus:          r.Species.Genus.ScientificName,
			Probability:    r.Score,
			Source:         ProviderPlantNet,
		})
	}

	return out, nil
}
