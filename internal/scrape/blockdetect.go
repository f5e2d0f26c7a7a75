package scrape

import (
	"net/http"
	"strings"
)

// BlockType names the anti-bot response recognised in a page.
type BlockType string

const (
	BlockNone      BlockType = ""
	BlockChallenge BlockType = "challenge"  // vendor interstitial (Cloudflare, Qrator, DDoS-Guard, ServicePipe)
	BlockCaptcha   BlockType = "captcha"    // captcha form served instead of the page
	BlockRateLimit BlockType = "rate_limit" // 429 without a marker page
	BlockJSShell   BlockType = "js_shell"   // empty shell that needs a browser
)

// challengeServers are Server header values of vendors that answer
// 403/503 with a challenge page.
var challengeServers = []string{"cloudflare", "qrator", "ddos-guard", "servicepipe"}

// challengeMarkers appear in vendor interstitial pages.
var challengeMarkers = []string{
	"checking your browser",
	"cf-browser-verification",
	"__qrator",
	"ddos-guard",
	"servicepipe.ru",
}

// captchaMarkers covers the common captcha vendors and the Russian
// anti-bot pages served by 2GIS and Yandex.
var captchaMarkers = []string{
	"recaptcha",
	"hcaptcha",
	"smartcaptcha",
	"captcha",
	"подтвердите, что вы не робот",
	"вы не робот",
	"доступ ограничен",
}

// Captcha pages are small; a full listing page may mention a captcha
// vendor in its bundled scripts.
const (
	captchaPageMax = 100_000
	shellPageMax   = 2000
)

// DetectBlock inspects a response for signs of anti-bot protection and
// returns BlockNone for a normal page.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		server := strings.ToLower(header.Get("Server"))
		for _, name := range challengeServers {
			if strings.Contains(server, name) {
				return BlockChallenge
			}
		}
		if header.Get("Cf-Ray") != "" {
			return BlockChallenge
		}
	}

	lower := strings.ToLower(string(body))
	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return BlockChallenge
		}
	}

	if status == http.StatusTooManyRequests {
		return BlockRateLimit
	}

	if len(body) < captchaPageMax {
		for _, m := range captchaMarkers {
			if strings.Contains(lower, m) {
				return BlockCaptcha
			}
		}
	}

	if len(body) < shellPageMax {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}
