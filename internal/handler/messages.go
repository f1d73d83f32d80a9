package handler

import (
	"errors"
	"net/http"

	"github.com/govai/console/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Supported response languages. English is the default and is rendered
// straight from the domain error messages.
var (
	supportedLanguages = []language.Tag{language.English, language.Japanese}
	languageMatcher    = language.NewMatcher(supportedLanguages)
)

// Translated message keys. Keys are the English format strings.
const (
	msgChatLimit      = "Monthly chat limit reached (%s/%d). Upgrade your plan."
	msgDocGenLimit    = "Monthly document generation limit reached (%s/%d). Upgrade your plan."
	msgStorageLimit   = "Storage limit reached (%sMB + %sMB > %dMB)."
	msgFeatureDenied  = "Feature '%s' is not available on your current plan."
	msgCostLimit      = "Monthly API usage limit exceeded (%.4f / %.2f USD). Please upgrade your plan."
	msgReasoningLimit = "Monthly Reasoning (o1) limit exceeded (%d/%d). Please upgrade or wait for next month."
)

// Fixed messages translated as-is.
var fixedMessages = map[string]string{
	"Authentication required":                             "認証が必要です。",
	"You don't have permission to access this resource":   "このリソースへのアクセス権限がありません。",
	"Too many requests. Please try again later.":          "リクエストが多すぎます。しばらくしてから再度お試しください。",
	"An internal error occurred. Please try again later.": "内部エラーが発生しました。しばらくしてから再度お試しください。",
	"The requested resource was not found":                "指定されたリソースが見つかりません。",
	"Validation failed":                                   "入力内容に誤りがあります。",
	"The AI service is temporarily unavailable":           "AIサービスが一時的に利用できません。",
	"File storage is temporarily unavailable":             "ファイルストレージが一時的に利用できません。",
	"A file with this name already exists":                "同じ名前のファイルが既に存在します。",
}

func init() {
	ja := language.Japanese
	_ = message.SetString(ja, msgChatLimit, "今月のチャット回数の上限に達しました（%s/%d）。プランをアップグレードしてください。")
	_ = message.SetString(ja, msgDocGenLimit, "今月の文書生成回数の上限に達しました（%s/%d）。プランをアップグレードしてください。")
	_ = message.SetString(ja, msgStorageLimit, "ストレージ容量の上限に達しました（%sMB + %sMB > %dMB）。")
	_ = message.SetString(ja, msgFeatureDenied, "機能「%s」は現在のプランではご利用いただけません。")
	_ = message.SetString(ja, msgCostLimit, "今月のAPI利用上限を超えました（%.4f / %.2f USD）。プランをアップグレードしてください。")
	_ = message.SetString(ja, msgReasoningLimit, "今月の推論モデル(o1)の利用上限を超えました（%d/%d）。アップグレードするか翌月までお待ちください。")
	for en, tr := range fixedMessages {
		_ = message.SetString(ja, en, tr)
	}
}

// requestLanguage picks the response language from Accept-Language.
func requestLanguage(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supportedLanguages[idx]
}

// localizedMessage renders the user-facing message for err in the
// request's language.
func localizedMessage(r *http.Request, err error) string {
	msg := domain.ErrorMessage(err)
	lang := requestLanguage(r)
	if lang == language.English {
		return msg
	}
	p := message.NewPrinter(lang)

	var qe *domain.QuotaExceededError
	var fe *domain.FeatureNotAvailableError
	var le *domain.LimitReachedError
	switch {
	case errors.As(err, &qe):
		current := domain.FormatAmount(qe.Current)
		switch qe.Metric {
		case domain.MetricChatMessage:
			return p.Sprintf(msgChatLimit, current, qe.Limit)
		case domain.MetricDocGen:
			return p.Sprintf(msgDocGenLimit, current, qe.Limit)
		case domain.MetricStorageMB:
			return p.Sprintf(msgStorageLimit, current, domain.FormatAmount(qe.Requested), qe.Limit)
		}
	case errors.As(err, &fe):
		return p.Sprintf(msgFeatureDenied, fe.Feature)
	case errors.As(err, &le):
		if le.Kind == domain.LimitKindReasoning {
			return p.Sprintf(msgReasoningLimit, int64(le.Current), int64(le.Limit))
		}
		return p.Sprintf(msgCostLimit, le.Current, le.Limit)
	}

	if _, ok := fixedMessages[msg]; ok {
		return p.Sprintf(msg)
	}
	return msg
}

// planDisplayName returns the plan's display name, falling back to the
// title-cased plan ID.
func planDisplayName(p *domain.PlanLimit) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return cases.Title(language.English).String(string(p.PlanID))
}
