package utils

// Server-side strings only; question text is served as stored.
var translations = map[string]map[string]string{
	"en": {
		"health.ok":          "ok",
		"error.invalid":      "Bad request",
		"error.not_found":    "Not found",
		"error.conflict":     "Conflict",
		"error.unauthorized": "Not authenticated",
		"error.internal":     "Internal server error",
		"auth.logged_out":    "Successfully logged out",
	},
	"zh": {
		"health.ok":          "好的",
		"error.invalid":      "请求无效",
		"error.not_found":    "未找到",
		"error.conflict":     "冲突",
		"error.unauthorized": "未认证",
		"error.internal":     "服务器内部错误",
		"auth.logged_out":    "已成功退出登录",
	},
}

// HasLocale reports whether server strings exist for locale.
func HasLocale(locale string) bool {
	_, ok := translations[locale]
	return ok
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
