package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omnicore/assistant/internal/chat"
)

// DefaultFragmentDelay paces the simulated character stream so the caller's
// progressive rendering is visible.
const DefaultFragmentDelay = 30 * time.Millisecond

// responseGroup pairs a keyword set with its canned reply. Groups are
// evaluated in order; the first whose keywords hit the lowercased input wins.
type responseGroup struct {
	keywords []string
	reply    string
}

var responseTable = []responseGroup{
	{
		keywords: []string{"钱包", "余额", "wallet", "balance"},
		reply: "我已经检查了您的钱包状态。您目前有:\n\n💰 **总资产**: $231,690.75\n\n主要钱包:\n" +
			"- Treasury Vault: $125,432 (Ethereum)\n- Operating Account: $23,234 (Polygon)\n" +
			"- DeFi Strategy: $8,024 (Arbitrum)\n\n需要我执行什么操作吗？",
	},
	{
		keywords: []string{"交易", "转账", "transaction", "transfer"},
		reply: "我可以帮您创建新交易。请提供以下信息:\n\n1. 发送方钱包\n2. 接收地址\n3. 金额和代币\n4. 交易描述\n\n" +
			"或者您可以说 \"从Treasury Vault转账5000 USDC到供应商\"，我会自动解析。",
	},
	{
		keywords: []string{"风险", "分析", "risk", "analysis"},
		reply: "🔍 **风险分析报告**\n\n当前待处理交易风险:\n\n⚠️ **高风险** - tx-3 (Operating Account)\n" +
			"- 大额转账: 25,000 USDT\n- 首次收款地址\n- 建议: 验证收款方身份\n\n" +
			"✅ **低风险** - tx-1 (Treasury Vault)\n- 已知收款方\n- 常规交易模式\n\n需要我提供更详细的分析吗？",
	},
	{
		keywords: []string{"defi", "策略", "收益", "strategy", "yield"},
		reply: "📊 **DeFi 策略建议**\n\n基于您的风险偏好，推荐:\n\n1. **稳定币借贷** (Aave V3)\n   - APY: 5.2%\n   - 风险: 低\n\n" +
			"2. **ETH 质押** (Lido)\n   - APY: 3.8%\n   - 风险: 低\n\n3. **流动性挖矿** (Uniswap V3)\n   - APY: 12.5%\n   - 风险: 中\n\n" +
			"需要我帮您配置自动投资策略吗？",
	},
	{
		keywords: []string{"你好", "您好", "hello", "hi", "嗨"},
		reply: "您好！我是 OmniCore 智能助手，可以帮助您:\n\n• 📊 查询和管理钱包\n• 💸 创建和签署交易\n" +
			"• 🔍 分析交易风险\n• 📈 管理 DeFi 策略\n\n请告诉我您需要什么帮助？",
	},
	{
		keywords: []string{"记得", "记忆", "remember", "memory"},
		reply:    memoryRecallReply,
	},
}

const memoryRecallReply = "__memory_recall__"

const fallbackReply = "感谢您的提问！我是 OmniCore 智能助手，可以帮助您:\n\n• 📊 查询和管理钱包\n• 💸 创建和签署交易\n" +
	"• 🔍 分析交易风险\n• 📈 管理 DeFi 策略\n• ⚙️ 配置平台设置\n\n请告诉我您需要什么帮助？"

// Mock is the simulated provider: a fixed keyword-matched response table,
// streamed one character at a time with an artificial delay.
type Mock struct {
	delay time.Duration
}

// NewMock creates a simulated provider with the given inter-fragment delay.
// Pass 0 to stream without pacing (used by tests).
func NewMock(delay time.Duration) *Mock {
	return &Mock{delay: delay}
}

// Generate streams the canned reply for req character by character.
func (m *Mock) Generate(ctx context.Context, req Request, emit func(fragment string)) error {
	reply := m.Respond(req.UserMessage, req.Memories)
	for _, r := range reply {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		emit(string(r))
		if m.delay > 0 {
			time.Sleep(m.delay)
		}
	}
	return nil
}

// Respond selects the full canned reply for userMessage, personalized with
// stored preference memories when any exist. Group order is significant: the
// first matching keyword group wins.
func (m *Mock) Respond(userMessage string, memories []chat.MemoryItem) string {
	lower := strings.ToLower(userMessage)

	reply := fallbackReply
	for _, g := range responseTable {
		if matchesAny(lower, g.keywords) {
			reply = g.reply
			break
		}
	}

	if reply == memoryRecallReply {
		return renderMemories(memories)
	}

	if block := renderPreferences(memories); block != "" {
		reply += block
	}
	return reply
}

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// renderPreferences renders stored preference-type memories as a suffix
// block, or "" when there are none.
func renderPreferences(memories []chat.MemoryItem) string {
	var sb strings.Builder
	for _, m := range memories {
		if m.Type != chat.MemoryPreference {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("\n\n根据我对您的了解:\n")
		}
		fmt.Fprintf(&sb, "- %s: %s\n", m.Key, m.Value)
	}
	return sb.String()
}

func renderMemories(memories []chat.MemoryItem) string {
	if len(memories) == 0 {
		return "我还没有记住关于您的任何信息。您可以直接告诉我您的偏好，或说\"记住……\"来添加。"
	}
	var sb strings.Builder
	sb.WriteString("🧠 **我记住的内容**\n\n")
	for _, m := range memories {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", memoryTypeLabel(m.Type), m.Key, m.Value)
	}
	return sb.String()
}

func memoryTypeLabel(t chat.MemoryType) string {
	switch t {
	case chat.MemoryPreference:
		return "偏好"
	case chat.MemoryTransactionPattern:
		return "交易模式"
	case chat.MemoryContact:
		return "联系人"
	case chat.MemoryInsight:
		return "洞察"
	default:
		return string(t)
	}
}
