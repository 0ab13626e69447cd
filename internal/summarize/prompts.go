package summarize

// DefaultSummaryPrompt asks for one neutral JSON digest per story.
const DefaultSummaryPrompt = `你是新闻播报助手，请根据提供的多平台信息，输出 JSON。
要求：
- summary: 2-3 句，保持中立。
- short_summary: 1 句，保持中立。
- priority_score: 0-100。
- title: 事件标题（简短）。
只输出 JSON，不要多余文本。`

// payloadSeparator joins the prompt and the JSON payload in a request.
const payloadSeparator = "\n数据: "

const (
	maxPayloadItems = 6
	maxSnippetRunes = 300
)
