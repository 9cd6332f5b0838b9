package outreach

import (
	"fmt"
	"strings"
	"text/template"
)

// Message templates per language. {{.Name}} is the candidate display name
// (nickname when known, handle otherwise).
var messageTemplates = map[string]*template.Template{
	"kr": template.Must(template.New("kr").Parse(
		"안녕하세요 {{.Name}}님! 라이브 방송 잘 보고 있습니다. " +
			"저희 에이전시와 함께 성장해 보실 생각이 있으신지 여쭤보고 싶어 연락드렸어요. " +
			"관심 있으시면 편하게 답장 부탁드립니다 :)")),
	"en": template.Must(template.New("en").Parse(
		"Hi {{.Name}}! We came across your live streams and really enjoyed them. " +
			"We'd love to talk about growing your channel together with our agency. " +
			"If you're interested, just reply here anytime :)")),
}

// RenderMessage produces the outreach text for lang ("kr" or "en"). Unknown
// languages are an error so a config typo never sends the wrong locale.
func RenderMessage(lang, name string) (string, error) {
	tpl, ok := messageTemplates[strings.ToLower(lang)]
	if !ok {
		return "", fmt.Errorf("no message template for language %q", lang)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, struct{ Name string }{Name: name}); err != nil {
		return "", err
	}
	return b.String(), nil
}
