package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

// AIProcessor handles ai_tag by asking an OpenAI-compatible chat endpoint
// for descriptive tags. Without an API key it falls back to heuristic tags
// derived from the file's metadata, so default installs still complete
// pipelines.
type AIProcessor struct {
	cfg    config.AI
	client *http.Client
}

// NewAIProcessor builds an AI tagging processor from configuration.
func NewAIProcessor(cfg config.AI) *AIProcessor {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &AIProcessor{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *AIProcessor) Kinds() []catalog.ActionKind {
	return []catalog.ActionKind{catalog.ActionAITag}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type tagDocument struct {
	Tags   []string `json:"tags"`
	Source string   `json:"source"`
}

func (p *AIProcessor) Process(ctx context.Context, req worker.Request) (*worker.Result, error) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ai", "read input", "", err)
	}

	var doc tagDocument
	if p.cfg.APIKey == "" {
		doc = tagDocument{Tags: heuristicTags(req.Input, p.cfg.MaxTags), Source: "heuristic"}
	} else {
		tags, tagErr := p.requestTags(ctx, req.Input, data)
		if tagErr != nil {
			return nil, tagErr
		}
		doc = tagDocument{Tags: tags, Source: "model"}
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ai", "encode tags", "", err)
	}
	return &worker.Result{
		Output:      payload,
		OutputName:  derivedName(req.Input.OriginalName, "_tags", "json"),
		ContentType: "application/json",
	}, nil
}

func (p *AIProcessor) requestTags(ctx context.Context, input *catalog.File, data []byte) ([]string, error) {
	prompt := fmt.Sprintf(
		"List up to %d short descriptive tags for this file, comma separated, no commentary. Name: %s, type: %s, size: %d bytes.",
		p.maxTags(), input.OriginalName, input.ContentType, input.SizeBytes)

	var content any = prompt
	if strings.HasPrefix(input.ContentType, "image/") {
		content = []map[string]any{
			{"type": "text", "text": prompt},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:" + input.ContentType + ";base64," + base64.StdEncoding.EncodeToString(data),
			}},
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ai", "encode request", "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ai", "build request", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "ai", "request", "", ctx.Err())
		}
		return nil, services.Wrap(services.ErrTransient, "ai", "request", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrConfiguration, "ai", "request",
			"endpoint rejected the API key", nil)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, services.Wrap(services.ErrValidation, "ai", "request",
			"endpoint rejected the request", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, services.Wrap(services.ErrTransient, "ai", "request",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ai", "decode response", "", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, services.Wrap(services.ErrTransient, "ai", "decode response",
			"no choices returned", nil)
	}
	tags := splitTags(parsed.Choices[0].Message.Content, p.maxTags())
	if len(tags) == 0 {
		return nil, services.Wrap(services.ErrContent, "ai", "decode response",
			"model returned no usable tags", nil)
	}
	return tags, nil
}

func (p *AIProcessor) maxTags() int {
	if p.cfg.MaxTags > 0 {
		return p.cfg.MaxTags
	}
	return 10
}

func splitTags(content string, max int) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	tags := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(field), ".#*-"))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == max {
			break
		}
	}
	return tags
}

func heuristicTags(input *catalog.File, max int) []string {
	tags := []string{}
	if slash := strings.IndexByte(input.ContentType, '/'); slash > 0 {
		tags = append(tags, input.ContentType[:slash])
		if sub := input.ContentType[slash+1:]; sub != "" {
			tags = append(tags, sub)
		}
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(input.OriginalName)), "."); ext != "" {
		tags = append(tags, ext)
	}
	switch {
	case input.SizeBytes > 100<<20:
		tags = append(tags, "large")
	case input.SizeBytes < 10<<10:
		tags = append(tags, "small")
	}
	if max > 0 && len(tags) > max {
		tags = tags[:max]
	}
	return tags
}
