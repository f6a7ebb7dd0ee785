// Package gemini 封装了 Google Gen AI SDK，提供内容生成与文件上传两个能力。
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
	"jurisai-go/internal/config"
)

// DefaultSourceTitle 是来源没有标题时使用的名称。
const DefaultSourceTitle = "Fuente Web"

// Part 是一轮消息中的一个片段：文本、内联字节或远程文件引用三者之一。
type Part struct {
	Text     string
	Data     []byte
	FileURI  string
	MIMEType string
}

// Turn 是发送给模型的一轮消息。Role 为 "user" 或 "model"。
type Turn struct {
	Role  string
	Parts []Part
}

// GenerateRequest 描述一次生成调用。
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Turns             []Turn
	GoogleSearch      bool
	// ReasoningBudget 大于 0 时启用思考模式。
	ReasoningBudget int32
}

// Source 是回答所依据的网络来源。
type Source struct {
	Title string
	URI   string
}

// GenerateResponse 是生成调用的结果。
type GenerateResponse struct {
	Text    string
	Sources []Source
}

// Client 定义了与 Gemini 交互的接口。
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Upload(ctx context.Context, data []byte, mimeType, displayName string) (string, error)
}

type genaiClient struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient 使用 Gemini API 后端创建客户端。文件上传只在该后端可用。
func NewClient(ctx context.Context, cfg config.GeminiConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api_key must be set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &genaiClient{client: client, timeout: cfg.Timeout}, nil
}

func (c *genaiClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Generate 调用 GenerateContent 并抽取文本与 grounding 来源。
func (c *genaiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := BuildContents(req.Turns)
	res, err := c.client.Models.GenerateContent(ctx, req.Model, contents, BuildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return &GenerateResponse{Text: res.Text(), Sources: ExtractSources(res)}, nil
}

// Upload 通过 Files API 上传字节，返回可在后续请求中引用的 URI。
func (c *genaiClient) Upload(ctx context.Context, data []byte, mimeType, displayName string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	file, err := c.client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return "", fmt.Errorf("gemini upload file: %w", err)
	}
	if file.URI == "" {
		return "", fmt.Errorf("gemini upload file: empty uri for %q", displayName)
	}
	return file.URI, nil
}

// BuildContents 将内部的轮次转换为 SDK 的 Content 列表。
func BuildContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == genai.RoleModel {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(t.Parts))
		for _, p := range t.Parts {
			switch {
			case p.FileURI != "":
				parts = append(parts, genai.NewPartFromURI(p.FileURI, p.MIMEType))
			case p.Data != nil:
				parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
			case p.Text != "":
				parts = append(parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

// BuildConfig 根据请求生成 GenerateContentConfig。
func BuildConfig(req GenerateRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.GoogleSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.ReasoningBudget > 0 {
		budget := req.ReasoningBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
	return cfg
}

// ExtractSources 从第一个候选的 grounding 元数据中取出网络来源。
func ExtractSources(res *genai.GenerateContentResponse) []Source {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range res.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = DefaultSourceTitle
		}
		sources = append(sources, Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}
