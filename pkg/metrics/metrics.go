package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ChatDuration, ChatTotal,
		ToolDuration, ToolTotal,
		LLMTokensTotal, LLMRounds,
		ArtifactTotal, ConsentTotal,
		RateLimitWaitSeconds,
	)
}

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "invagent_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// ChatDuration 单次用户交互耗时（秒）
var ChatDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "invagent_chat_duration_seconds",
		Help:    "单次用户交互耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// ChatTotal 交互总数（按结果）
var ChatTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invagent_chat_total",
		Help: "交互总数（按结果）",
	},
	[]string{"outcome"}, // answer | pending_consent | error
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "invagent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// ToolTotal 工具调用总数（按工具与状态）
var ToolTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invagent_tool_total",
		Help: "工具调用总数",
	},
	[]string{"tool", "status"}, // ok | error
)

// LLMTokensTotal LLM 调用 token 数
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invagent_llm_tokens_total",
		Help: "LLM 调用 token 总数",
	},
	[]string{"direction"}, // input | output
)

// LLMRounds 单次交互的工具循环轮数
var LLMRounds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "invagent_llm_rounds",
		Help:    "单次交互的工具循环轮数",
		Buckets: []float64{1, 2, 3, 5, 8, 14},
	},
)

// ArtifactTotal 导出文件签发总数（按类型）
var ArtifactTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invagent_artifact_total",
		Help: "导出文件签发总数",
	},
	[]string{"format"}, // csv | pdf
)

// ConsentTotal 确认动作总数（按终态）
var ConsentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invagent_consent_total",
		Help: "确认动作总数（按终态）",
	},
	[]string{"state"}, // executed | rejected | expired
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
