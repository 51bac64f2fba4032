package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/lueurxax/trendpulse/internal/archive"
	"github.com/lueurxax/trendpulse/internal/platform/config"
	"github.com/lueurxax/trendpulse/internal/platform/observability"
	"github.com/lueurxax/trendpulse/internal/platform/worker"
)

// Classifier labels a topic from its sample posts.
type Classifier interface {
	Classify(ctx context.Context, topic string, posts []archive.Post) (*archive.Classification, error)
}

var (
	// ErrCircuitBreakerOpen indicates the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrUnparsableResponse indicates no structured payload could be
	// extracted from the model response.
	ErrUnparsableResponse = errors.New("failed to extract structured payload from model response")
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = time.Minute
	rateLimiterBurst        = 5
	defaultRequestTimeout   = time.Minute

	maxSamplePosts     = 20
	maxSampleTextRunes = 500

	classifyTemperature = 0.2
)

const systemPrompt = "你是一个中文舆情分析助手。给定一个事件及其若干条贴文样本，请完成：" +
	"1) 事件整体情绪（-1~1，负面到正面）" +
	"2) 事件主要涉及的地区（从中国34个省级地区或“国外”中挑一个）" +
	"3) 事件类型（娱乐/房产/时尚/动漫/美食/公益/历史/文学/健康/军事/汽车/旅行/游戏/交通/能源/农业/文化/财经/社会/体育/时政/教育/科技/未知）。" +
	"仅返回JSON，键：sentiment, region, topic_type。"

var regionList = []string{
	"北京", "天津", "河北", "山西", "内蒙古", "辽宁", "吉林", "黑龙江", "上海", "江苏", "浙江", "安徽", "福建", "江西", "山东",
	"河南", "湖北", "湖南", "广东", "广西", "海南", "重庆", "四川", "贵州", "云南", "西藏", "陕西", "甘肃", "青海", "宁夏", "新疆",
	"香港", "澳门", "台湾", "国外", "未知",
}

var sentimentWords = map[string]float64{
	"positive": 0.6, "pos": 0.6, "正面": 0.6, "积极": 0.6,
	"neutral": 0, "neut": 0, "中性": 0,
	"negative": -0.6, "neg": -0.6, "负面": -0.6, "消极": -0.6,
}

var (
	thinkPattern     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	codeFencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
)

type openaiClassifier struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAIClassifier wires the external model behind a rate limiter and a
// circuit breaker.
func NewOpenAIClassifier(cfg *config.Config, logger *zerolog.Logger) Classifier {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &openaiClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.LLMModel,
		timeout:     timeout,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.LLMRPS)), rateLimiterBurst),
	}
}

func (c *openaiClassifier) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", ErrCircuitBreakerOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClassifier) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
}

func (c *openaiClassifier) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("Circuit breaker opened")
	}
}

func (c *openaiClassifier) Classify(ctx context.Context, topic string, posts []archive.Post) (*archive.Classification, error) {
	if err := c.checkCircuit(); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	userPrompt, err := buildUserPrompt(topic, posts)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	var resp openai.ChatCompletionResponse

	err = worker.RunWithTimeout(ctx, c.timeout, func(ctx context.Context) error {
		var callErr error

		resp, callErr = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: classifyTemperature,
		})

		return callErr
	})

	observability.ClassifierRequestDuration.WithLabelValues(c.model).Observe(time.Since(started).Seconds())

	if err != nil {
		c.recordFailure()

		return nil, fmt.Errorf("chat completion: %w", err)
	}

	c.recordSuccess()

	content := resp.Choices[0].Message.Content
	c.logger.Debug().Str("topic", topic).Str("content", content).Msg("classifier response")

	payload, ok := structuredPayload(content)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnparsableResponse, content)
	}

	classification := buildClassification(payload)
	c.logger.Info().
		Str("topic", topic).
		Float64("sentiment", classification.Sentiment).
		Str("region", classification.Region).
		Str("topic_type", classification.TopicType).
		Msg("classifier parsed")

	return classification, nil
}

func buildUserPrompt(topic string, posts []archive.Post) (string, error) {
	type sample struct {
		PublishedAt string `json:"published_at,omitempty"`
		AccountName string `json:"account_name,omitempty"`
		ContentText string `json:"content_text"`
		Reposts     int    `json:"reposts"`
		Comments    int    `json:"comments"`
		Likes       int    `json:"likes"`
	}

	samples := make([]sample, 0, maxSamplePosts)

	for _, post := range posts {
		if len(samples) == maxSamplePosts {
			break
		}

		samples = append(samples, sample{
			PublishedAt: post.PublishedAt,
			AccountName: post.AccountName,
			ContentText: truncateRunes(post.ContentText, maxSampleTextRunes),
			Reposts:     post.Reposts,
			Comments:    post.Comments,
			Likes:       post.Likes,
		})
	}

	prompt, err := json.Marshal(map[string]any{
		"event":             topic,
		"samples":           samples,
		"region_candidates": regionList,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling classifier prompt: %w", err)
	}

	return string(prompt), nil
}

// structuredPayload extracts the first parseable JSON object from a model
// reply: the raw content, then fenced blocks, then any balanced brace block.
func structuredPayload(raw string) (map[string]any, bool) {
	cleaned := strings.TrimSpace(thinkPattern.ReplaceAllString(raw, ""))

	candidates := []string{cleaned}
	for _, match := range codeFencePattern.FindAllStringSubmatch(cleaned, -1) {
		candidates = append(candidates, strings.TrimSpace(match[1]))
	}

	candidates = append(candidates, braceBlocks(cleaned)...)

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}

		if payload := jsonObject(candidate); payload != nil {
			return payload, true
		}
	}

	return nil, false
}

func jsonObject(candidate string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(candidate), &payload); err == nil && len(payload) > 0 {
		return payload
	}

	var list []map[string]any
	if err := json.Unmarshal([]byte(candidate), &list); err == nil && len(list) > 0 {
		return list[0]
	}

	return nil
}

func braceBlocks(content string) []string {
	var blocks []string

	depth, start := 0, -1

	for i, char := range content {
		switch char {
		case '{':
			if depth == 0 {
				start = i
			}

			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					blocks = append(blocks, content[start:i+1])
					start = -1
				}
			}
		}
	}

	return blocks
}

func buildClassification(payload map[string]any) *archive.Classification {
	return &archive.Classification{
		Sentiment: coerceSentiment(firstValue(payload, "sentiment", "sentiment_score", "score")),
		Region:    normalizeRegion(firstValue(payload, "region", "region_name", "地区")),
		TopicType: normalizeTopicType(firstValue(payload, "topic_type", "topic", "类型")),
		Source:    "llm",
	}
}

func firstValue(payload map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := payload[key]; ok && v != nil {
			return v
		}
	}

	return nil
}

func coerceSentiment(value any) float64 {
	var score float64

	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		score = v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}

		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			score = sentimentWords[strings.ToLower(trimmed)]
		} else {
			score = parsed
		}
	default:
		return 0
	}

	if score < -1 {
		return -1
	}

	if score > 1 {
		return 1
	}

	return score
}

func normalizeRegion(value any) string {
	region := strings.TrimSpace(fmt.Sprintf("%v", value))
	if value == nil || region == "" {
		return "未知"
	}

	for _, candidate := range regionList {
		if candidate == region {
			return region
		}
	}

	core := region
	for _, suffix := range []string{"省", "市", "壮族自治区", "维吾尔自治区", "回族自治区", "自治区"} {
		core = strings.ReplaceAll(core, suffix, "")
	}

	for _, candidate := range regionList {
		if candidate == "未知" {
			continue
		}

		if strings.Contains(region, candidate) || (core != "" && strings.Contains(candidate, core)) {
			return candidate
		}
	}

	if strings.Contains(region, "国") {
		return "国外"
	}

	return "未知"
}

func normalizeTopicType(value any) string {
	if value == nil {
		return "其他"
	}

	topic := strings.TrimSpace(fmt.Sprintf("%v", value))
	if topic == "" {
		return "其他"
	}

	return topic
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max])
}
