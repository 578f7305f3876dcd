package session

import (
	"net"
	"net/http"
	"strings"

	"github.com/hitoshi/resumetrack/internal/model"
)

// LocationHeader はエッジで付与される地域情報のヘッダー名。
const LocationHeader = "X-Geo-Location"

const (
	deviceMobile  = "Mobile"
	deviceDesktop = "Desktop"
	unknown       = "Unknown"
)

// ClientContextFromRequest はリクエストからクライアント情報を抽出する。
// IPアドレスはRealIPミドルウェアで書き換え済みのRemoteAddrから取得する。
func ClientContextFromRequest(r *http.Request) model.ClientContext {
	ua := r.UserAgent()
	device, browser := ParseUserAgent(ua)
	return model.ClientContext{
		IPAddress: clientIP(r.RemoteAddr),
		UserAgent: ua,
		Location:  strings.TrimSpace(r.Header.Get(LocationHeader)),
		Device:    device,
		Browser:   browser,
	}
}

// ParseUserAgent はUser-Agentから端末種別とブラウザ名を大まかに判定する。
func ParseUserAgent(ua string) (device, browser string) {
	if ua == "" {
		return unknown, unknown
	}

	device = deviceDesktop
	for _, token := range []string{"Mobile", "Android", "iPhone", "iPad"} {
		if strings.Contains(ua, token) {
			device = deviceMobile
			break
		}
	}

	// EdgeとChromeのUAは"Chrome"を、ChromeのUAは"Safari"を含むため判定順が重要
	switch {
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/"):
		browser = "Edge"
	case strings.Contains(ua, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "Chrome/") || strings.Contains(ua, "CriOS/"):
		browser = "Chrome"
	case strings.Contains(ua, "Safari/"):
		browser = "Safari"
	default:
		browser = unknown
	}
	return device, browser
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
