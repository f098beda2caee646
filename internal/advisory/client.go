package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"helplink/internal/apperr"
	"helplink/internal/entity"
	"helplink/pkg/logx"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"

	advicePrompt = "You are a knowledgeable home-improvement assistant. Give the requester " +
		"practical, safety-first guidance on their problem. Keep answers short and concrete. " +
		"When the problem needs a licensed professional, say so plainly."

	summaryPrompt = "Summarize the following conversation between a requester and an expert. " +
		"Start with a one-line title, then list decisions made and agreed next steps."
)

// Client talks to the advice API. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

// Option configures the client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New constructs a client. An empty apiKey is allowed; calls will fail with
// ErrAuth on first use, which the planning thread surfaces as a hint to
// configure the key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		log:     logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ---- wire types ----

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireRequest struct {
	SystemInstruction *wireContent  `json:"systemInstruction,omitempty"`
	Contents          []wireContent `json:"contents"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web,omitempty"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func buildContents(thread []entity.Message, image *InlineImage) []wireContent {
	out := make([]wireContent, 0, len(thread))
	for _, m := range thread {
		if m.Text == "" {
			continue
		}
		role := "user"
		if m.Role == entity.MessageModel {
			role = "model"
		}
		out = append(out, wireContent{Role: role, Parts: []wirePart{{Text: m.Text}}})
	}
	if image != nil && len(out) > 0 {
		last := &out[len(out)-1]
		last.Parts = append(last.Parts, wirePart{
			InlineData: &wireInlineData{MIMEType: image.MIMEType, Data: image.Data},
		})
	}
	return out
}

func (c *Client) generate(ctx context.Context, system string, contents []wireContent) (*wireResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("advisory: no api key: %w", apperr.ErrAuth)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("advisory: rate wait: %w", err)
	}

	req := wireRequest{Contents: contents}
	if system != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: system}}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("advisory: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("advisory: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperr.NewServiceError("advisory", 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisory: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		var wr wireResponse
		if json.Unmarshal(raw, &wr) == nil && wr.Error != nil {
			msg = wr.Error.Message
		}
		return nil, apperr.NewServiceError("advisory", resp.StatusCode, msg)
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("advisory: decode response: %w", apperr.ErrMalformedData)
	}
	if len(wr.Candidates) == 0 {
		return nil, apperr.NewServiceError("advisory", resp.StatusCode, "empty candidate list")
	}
	return &wr, nil
}

// Advice answers the latest turn of a planning thread.
func (c *Client) Advice(ctx context.Context, req AdviceRequest) (Reply, error) {
	contents := buildContents(req.Thread, req.Image)
	if len(contents) == 0 {
		return Reply{}, fmt.Errorf("advisory: empty thread: %w", apperr.ErrMalformedData)
	}

	system := advicePrompt
	if req.ContextSummary != "" {
		system += "\n\nProject context: " + req.ContextSummary
	}

	wr, err := c.generate(ctx, system, contents)
	if err != nil {
		return Reply{}, err
	}

	var reply Reply
	cand := wr.Candidates[0]
	for _, p := range cand.Content.Parts {
		reply.Text += p.Text
		if p.InlineData != nil && p.InlineData.Data != "" {
			reply.Images = append(reply.Images, p.InlineData.Data)
		}
	}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				reply.Sources = append(reply.Sources, entity.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
			}
		}
	}

	c.log.Debug("advice generated",
		logx.Int("turns", len(contents)),
		logx.Int("sources", len(reply.Sources)))
	return reply, nil
}

// Summarize condenses an expert conversation into a milestone entry.
// Only user and expert turns are included; system notices are noise here.
func (c *Client) Summarize(ctx context.Context, thread []entity.Message) (Summary, error) {
	var b strings.Builder
	for _, m := range thread {
		switch m.Role {
		case entity.MessageUser:
			fmt.Fprintf(&b, "Requester: %s\n", m.Text)
		case entity.MessageExpert:
			name := m.ExpertName
			if name == "" {
				name = "Expert"
			}
			fmt.Fprintf(&b, "%s: %s\n", name, m.Text)
		}
	}
	if b.Len() == 0 {
		return Summary{}, fmt.Errorf("advisory: nothing to summarize: %w", apperr.ErrMalformedData)
	}

	wr, err := c.generate(ctx, summaryPrompt, []wireContent{
		{Role: "user", Parts: []wirePart{{Text: b.String()}}},
	})
	if err != nil {
		return Summary{}, err
	}

	var text string
	for _, p := range wr.Candidates[0].Content.Parts {
		text += p.Text
	}
	return splitSummary(text), nil
}

// splitSummary treats the first non-empty line as the title.
func splitSummary(text string) Summary {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	s := Summary{Title: strings.TrimSpace(strings.TrimPrefix(lines[0], "#"))}
	if len(lines) > 1 {
		s.Content = strings.TrimSpace(lines[1])
	} else {
		s.Content = s.Title
	}
	return s
}
