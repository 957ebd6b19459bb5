package scanerr

// UserMessage returns a localized user-facing message for a Code.
// Falls back to English for unknown locales. Cancellations have no user
// message at all.
func UserMessage(code Code, locale string) string {
	msgs, ok := messages[code]
	if !ok {
		msgs = messages[CodeServerFailed]
	}
	if m, ok := msgs[locale]; ok {
		return m
	}
	return msgs["en"]
}

var messages = map[Code]map[string]string{
	CodeTimeout: {
		"en": "The request timed out. Please try again.",
		"ko": "요청 시간이 초과되었습니다. 다시 시도해 주세요.",
	},
	CodeNetworkFailed: {
		"en": "A network error occurred. Please check your connection.",
		"ko": "네트워크 오류가 발생했습니다. 연결을 확인해 주세요.",
	},
	CodeServerFailed: {
		"en": "Something went wrong while analyzing the menu.",
		"ko": "메뉴 분석 중 문제가 발생했습니다.",
	},
	CodeMenuNotRecognized: {
		"en": "Could not recognize the menu. Try retaking the photo.",
		"ko": "메뉴를 인식할 수 없습니다. 사진을 다시 찍어 주세요.",
	},
}
