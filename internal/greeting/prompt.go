// Package greeting turns a holiday occurrence into a short Chinese greeting.
// Generation goes through an LLM backend; when the backend keeps failing a
// configured template is used instead, so a greeting is always produced.
package greeting

import (
	"strings"

	"festivalbot/internal/holiday"
	"festivalbot/internal/llm"
)

// Style selects the tone of the greeting.
type Style string

const (
	StyleWarm     Style = "warm"
	StyleFormal   Style = "formal"
	StyleCheerful Style = "cheerful"
)

var styleGuidance = map[Style]string{
	StyleWarm:     "语气温暖、真诚，适合多数正式或半正式群聊。",
	StyleFormal:   "语气端庄，适合政务、企业或教学场景，避免网络用语。",
	StyleCheerful: "语气活泼，适度俏皮但保持礼貌，突出节日氛围。",
}

// ValidStyle reports whether s names a known style.
func ValidStyle(s string) bool {
	_, ok := styleGuidance[Style(strings.ToLower(strings.TrimSpace(s)))]
	return ok
}

// Guidance returns the tone hint for s. Unknown styles use warm.
func (s Style) Guidance() string {
	if g, ok := styleGuidance[Style(strings.ToLower(strings.TrimSpace(string(s))))]; ok {
		return g
	}
	return styleGuidance[StyleWarm]
}

// Request describes one greeting to generate.
type Request struct {
	HolidayName string
	Aliases     []string
	Description string
	Date        holiday.Date
	Style       Style
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int
	// Context is optional background about the conversation.
	Context string
}

// RequestFor builds a request from a resolved occurrence.
func RequestFor(occ holiday.Occurrence, style Style, maxRetries int, background string) Request {
	return Request{
		HolidayName: occ.Holiday.Name,
		Aliases:     occ.Holiday.Aliases,
		Description: occ.Holiday.Description,
		Date:        occ.Date,
		Style:       style,
		MaxRetries:  maxRetries,
		Context:     background,
	}
}

// BuildPrompt renders the system and user prompt for req.
func BuildPrompt(req Request) llm.Prompt {
	return llm.Prompt{
		System: systemPrompt(req.Style),
		User:   userPrompt(req),
	}
}

func systemPrompt(s Style) string {
	return "你正在为机器人生成节日祝福。请保持中文输出，避免使用 HTML、Markdown、表情符号，" +
		"保持一句或两句平衡的祝福结构。 风格提示：" + s.Guidance()
}

func userPrompt(req Request) string {
	aliases := "无"
	if len(req.Aliases) > 0 {
		aliases = strings.Join(req.Aliases, ", ")
	}

	var b strings.Builder
	b.WriteString("你是一名擅长撰写中文祝福语的助理。\n")
	b.WriteString("节日名称：" + req.HolidayName + "\n")
	b.WriteString("节日日期：" + req.Date.String() + "\n")
	b.WriteString("节日别名：" + aliases + "\n")
	if d := strings.TrimSpace(req.Description); d != "" {
		b.WriteString("节日简介：" + d + "\n")
	}
	b.WriteString("风格要求：" + req.Style.Guidance() + "\n")
	b.WriteString("请输出 1 条 40-80 字的群聊祝福，使用纯文本，适度引用节日传统或习俗，")
	b.WriteString("避免表情符号与过度营销语。可包含 1 句对未来的期许或祝愿。\n")
	if c := strings.TrimSpace(req.Context); c != "" {
		b.WriteString("群聊背景：" + c + "\n")
	}
	return strings.TrimSpace(b.String())
}
