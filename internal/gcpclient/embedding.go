package gcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/threadloom/threadloom/internal/retry"
)

// EmbeddingDimensions is the fixed vector dimension D produced by
// EmbeddingAdapter, matching the dimension every stored article embedding
// and similarity query is compared under.
const EmbeddingDimensions = 384

// EmbeddingAdapter calls the Vertex AI text embedding REST API. It
// implements embedding.Provider.
type EmbeddingAdapter struct {
	project  string
	location string
	model    string
	client   *http.Client
}

// NewEmbeddingAdapter creates an EmbeddingAdapter using default credentials.
func NewEmbeddingAdapter(ctx context.Context, project, location, model string) (*EmbeddingAdapter, error) {
	client, err := google.DefaultClient(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("gcpclient.NewEmbeddingAdapter: %w", err)
	}
	return &EmbeddingAdapter{
		project:  project,
		location: location,
		model:    model,
		client:   client,
	}, nil
}

type embeddingRequest struct {
	Instances  []embeddingInstance    `json:"instances"`
	Parameters embeddingRequestParams `json:"parameters"`
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
}

type embeddingRequestParams struct {
	OutputDimensionality int `json:"outputDimensionality"`
}

type embeddingResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

// Encode embeds a single text, implementing embedding.Provider.
func (a *EmbeddingAdapter) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EncodeBatch(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in chunks of batchSize, implementing
// embedding.Provider. Uses the RETRIEVAL_DOCUMENT task type, appropriate
// for content that will be stored and later searched against.
func (a *EmbeddingAdapter) EncodeBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := retry.Do(ctx, "EncodeBatch", retry.DefaultSchedule, func() ([][]float32, error) {
			return a.doEmbed(ctx, texts[start:end])
		})
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

// embedTimeout is the per-call deadline for one embedding request.
const embedTimeout = 30 * time.Second

func (a *EmbeddingAdapter) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	instances := make([]embeddingInstance, len(texts))
	for i, t := range texts {
		instances[i] = embeddingInstance{Content: t, TaskType: "RETRIEVAL_DOCUMENT"}
	}

	reqBody, err := json.Marshal(embeddingRequest{
		Instances:  instances,
		Parameters: embeddingRequestParams{OutputDimensionality: EmbeddingDimensions},
	})
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EncodeBatch marshal: %w", err)
	}

	url := a.buildEndpointURL()

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EncodeBatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gcpclient.EncodeBatch call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gcpclient.EncodeBatch: status %d: %s", resp.StatusCode, body)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("gcpclient.EncodeBatch decode: %w", err)
	}

	results := make([][]float32, len(embResp.Predictions))
	for i, p := range embResp.Predictions {
		results[i] = p.Embeddings.Values
	}
	return results, nil
}

// buildEndpointURL returns the correct Vertex AI endpoint URL. For
// "global" location, uses the non-regional endpoint.
func (a *EmbeddingAdapter) buildEndpointURL() string {
	if a.location == "global" {
		return fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/global/publishers/google/models/%s:predict",
			a.project, a.model,
		)
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		a.location, a.project, a.location, a.model,
	)
}

// HealthCheck validates the embedding service connection.
func (a *EmbeddingAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.Encode(ctx, "health check")
	if err != nil {
		return fmt.Errorf("embedding health check failed: %w", err)
	}
	return nil
}
