package chat

// MockModelName is the placeholder model reported by the mock provider.
const MockModelName = "omnicore-sim"

// DefaultSystemPrompt is the assistant persona used when nothing is configured.
const DefaultSystemPrompt = `你是 OmniCore 智能助手，一个专业的企业级加密资产管理平台AI助手。

你的核心能力包括:
1. 钱包管理 - 帮助用户查询余额、创建钱包、管理资产
2. 交易处理 - 协助发起、审核和签署交易
3. DeFi策略 - 提供收益优化建议和风险分析
4. 风险评估 - 实时评估交易和地址风险

请用专业、友好的语气回复用户。如果涉及敏感操作，请提醒用户进行二次确认。
对于复杂问题，请分步骤清晰地解释。`

// Temperature bounds accepted by the inference endpoints.
const (
	minTemperature = 0.0
	maxTemperature = 2.0
)

// Config is the runtime assistant configuration. Exactly one configuration is
// active at a time; it is persisted on every mutation.
type Config struct {
	Provider     Provider `json:"provider"`
	Endpoint     string   `json:"endpoint"`
	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	SystemPrompt string   `json:"system_prompt"`
}

// ConfigPatch is a partial configuration update. Nil fields are left unchanged.
type ConfigPatch struct {
	Provider     *Provider `json:"provider,omitempty"`
	Endpoint     *string   `json:"endpoint,omitempty"`
	Model        *string   `json:"model,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	MaxTokens    *int      `json:"max_tokens,omitempty"`
	SystemPrompt *string   `json:"system_prompt,omitempty"`
}

// Apply merges the patch over c field by field and returns the result.
// Temperature is clamped to the accepted range.
func (c Config) Apply(p ConfigPatch) Config {
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.Endpoint != nil {
		c.Endpoint = *p.Endpoint
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.Temperature != nil {
		c.Temperature = min(max(*p.Temperature, minTemperature), maxTemperature)
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
	if p.SystemPrompt != nil {
		c.SystemPrompt = *p.SystemPrompt
	}
	return c
}

// DefaultConfig returns the hard-coded configuration used when nothing is
// stored or the stored value is unreadable.
func DefaultConfig() Config {
	return Config{
		Provider:     ProviderMock,
		Endpoint:     "http://localhost:11434",
		Model:        MockModelName,
		Temperature:  0.7,
		MaxTokens:    2048,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// DefaultCapabilities returns the built-in capability descriptors.
func DefaultCapabilities() []Capability {
	return []Capability{
		{ID: "long-term-memory", Name: "长期记忆", Description: "从对话中学习并保存用户偏好和常用信息", Category: "memory", Enabled: true},
		{ID: "context-recall", Name: "上下文回忆", Description: "在回复中引用近期对话和已学习的记忆", Category: "memory", Enabled: true},
		{ID: "bilingual", Name: "中英双语", Description: "理解并回复中文和英文输入", Category: "language", Enabled: true},
		{ID: "intent-parsing", Name: "意图解析", Description: "识别钱包、交易、风险等业务意图", Category: "language", Enabled: true},
		{ID: "action-execution", Name: "操作执行", Description: "代表用户发起钱包操作（需二次确认）", Category: "control", Enabled: false},
		{ID: "risk-alerts", Name: "风险提醒", Description: "主动提示高风险交易和地址", Category: "control", Enabled: true},
	}
}
