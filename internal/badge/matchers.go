package badge

import (
	"regexp"
	"strings"
)

// unreadIntentRe matches "unread/new message" phrasing in English and
// Chinese, including check verbs like 查看 and 有没有.
var unreadIntentRe = regexp.MustCompile(`(?i)(unread|new message|消息|未读|有没有|查看.*(消息|未读))`)

// messageWordRe requires an actual message/chat noun so "check the news"
// does not gate into the badge shortcut.
var messageWordRe = regexp.MustCompile(`(?i)(message|消息|未读|聊天|chat)`)

// chatAppKeywords gate the badge scan to screens that can plausibly show a
// conversation list.
var chatAppKeywords = []string{
	"wechat", "weixin", "微信",
	"wecom", "企业微信",
	"qq",
	"dingtalk", "钉钉",
	"slack",
	"telegram",
	"discord",
	"messages", "imessage", "信息",
	"whatsapp",
	"lark", "飞书",
}

// MatchesUnreadGoal reports whether a goal is an unread/new-message check.
func MatchesUnreadGoal(goal string) bool {
	g := strings.TrimSpace(goal)
	if g == "" {
		return false
	}
	return unreadIntentRe.MatchString(g) && messageWordRe.MatchString(g)
}

// LooksLikeChatApp reports whether an app name matches a known chat app.
func LooksLikeChatApp(appName string) bool {
	name := strings.ToLower(strings.TrimSpace(appName))
	if name == "" {
		return false
	}
	for _, kw := range chatAppKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// TargetAppHint matches a goal against the known chat-app table and
// returns the canonical app name to operate, or "". Used by the
// delegation path to pin the backend to the right app.
func TargetAppHint(goal string) string {
	g := strings.ToLower(goal)
	switch {
	case strings.Contains(g, "企业微信") || strings.Contains(g, "wecom"):
		return "WeCom"
	case strings.Contains(g, "微信") || strings.Contains(g, "wechat") || strings.Contains(g, "weixin"):
		return "WeChat"
	case strings.Contains(g, "钉钉") || strings.Contains(g, "dingtalk"):
		return "DingTalk"
	case strings.Contains(g, "飞书") || strings.Contains(g, "lark"):
		return "Lark"
	case strings.Contains(g, "slack"):
		return "Slack"
	case strings.Contains(g, "telegram"):
		return "Telegram"
	case strings.Contains(g, "discord"):
		return "Discord"
	case strings.Contains(g, "whatsapp"):
		return "WhatsApp"
	case strings.Contains(g, "imessage") || strings.Contains(g, "messages"):
		return "Messages"
	case strings.Contains(g, "qq"):
		return "QQ"
	default:
		return ""
	}
}
