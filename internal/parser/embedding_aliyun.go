package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"resume-match-go/internal/config"
	applogger "resume-match-go/internal/logger"

	"github.com/cloudwego/eino/components/embedding"
)

// ErrEmbeddingFailed 向量化失败
var ErrEmbeddingFailed = errors.New("文本向量化失败")

// AliyunEmbedder 实现 cloudwego/eino 的 embedding.Embedder 接口
// 走阿里云DashScope的OpenAI兼容embeddings端点。
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	baseURL    string
}

var _ embedding.Embedder = (*AliyunEmbedder)(nil)

// NewAliyunEmbedder 创建阿里云Embedder
func NewAliyunEmbedder(cfg config.EmbeddingConfig) (*AliyunEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	return &AliyunEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}, nil
}

// GetDimensions 返回嵌入器配置的向量维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// aliyunEmbeddingRequest 阿里云Embedding请求结构 (OpenAI兼容)
type aliyunEmbeddingRequest struct {
	Input      interface{} `json:"input"` // string 或 []string
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
}

// aliyunEmbeddingResponse 阿里云Embedding响应结构 (OpenAI兼容)
type aliyunEmbeddingResponse struct {
	Object string                 `json:"object"`
	Data   []aliyunEmbeddingEntry `json:"data"`
	Model  string                 `json:"model"`
	Usage  aliyunEmbeddingUsage   `json:"usage"`
	Error  *aliyunAPIError        `json:"error,omitempty"`
}

type aliyunEmbeddingEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type aliyunEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// aliyunAPIError 状态码200但带业务错误时的错误体
type aliyunAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本批量转换为向量，实现 embedding.Embedder 接口
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := aliyunEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: 序列化请求失败: %v", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: 创建HTTP请求失败: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 发送HTTP请求失败: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应体失败: %v", ErrEmbeddingFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError aliyunAPIError
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			return nil, fmt.Errorf("%w: API调用失败, 状态码: %d, 类型: %s, 错误: %s",
				ErrEmbeddingFailed, resp.StatusCode, apiError.Type, apiError.Message)
		}
		return nil, fmt.Errorf("%w: API调用失败, 状态码: %d, 响应: %s", ErrEmbeddingFailed, resp.StatusCode, string(body))
	}

	var parsedResp aliyunEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("%w: 解析响应JSON失败: %v", ErrEmbeddingFailed, err)
	}
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("%w: API返回错误: 类型=%s, 消息=%s", ErrEmbeddingFailed, parsedResp.Error.Type, parsedResp.Error.Message)
	}
	if len(parsedResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: 返回向量数量(%d)与输入文本数量(%d)不一致", ErrEmbeddingFailed, len(parsedResp.Data), len(texts))
	}

	// 响应顺序不保证与输入一致，按Index归位
	outputEmbeddings := make([][]float64, len(parsedResp.Data))
	for _, entry := range parsedResp.Data {
		if entry.Index < 0 || entry.Index >= len(outputEmbeddings) {
			return nil, fmt.Errorf("%w: 返回向量下标越界: %d", ErrEmbeddingFailed, entry.Index)
		}
		outputEmbeddings[entry.Index] = entry.Embedding
	}

	applogger.Debug().
		Int("texts", len(texts)).
		Int("prompt_tokens", parsedResp.Usage.PromptTokens).
		Msg("向量化完成")
	return outputEmbeddings, nil
}
