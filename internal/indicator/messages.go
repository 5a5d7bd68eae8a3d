package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish    locale = "en"
	localeVietnamese locale = "vi"
)

type messages struct {
	summary   string
	success   string
	errorText string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "vi") {
		return localeVietnamese
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeVietnamese:
		return messages{
			summary:   "Luyện phỏng vấn",
			success:   "Hoàn tất",
			errorText: "Đã xảy ra lỗi",
		}
	default:
		return messages{
			summary:   "Interview practice",
			success:   "Done",
			errorText: "Something went wrong",
		}
	}
}
